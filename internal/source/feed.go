// Package source supplies the raw tabular records the indexing and analytics
// paths consume. Records are re-fetched on every pass and never persisted.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Record is one row of the feed: field name -> text value. All values are
// opaque text; consumers coerce per field.
type Record map[string]string

// Dataset is an ordered batch of records plus the header order they arrived
// with. Header order drives deterministic row serialization.
type Dataset struct {
	Headers   []string
	Records   []Record
	SourceRef string
}

// Fetcher supplies the current dataset.
type Fetcher interface {
	Fetch(ctx context.Context) (Dataset, error)
}

// Feed fetches CSV content from a URL.
type Feed struct {
	URL    string
	Client *http.Client
}

func NewFeed(url string) *Feed {
	return &Feed{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *Feed) Fetch(ctx context.Context) (Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return Dataset{}, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return Dataset{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Dataset{}, fmt.Errorf("fetch feed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Dataset{}, fmt.Errorf("read feed body: %w", err)
	}

	ds := ParseCSV(string(body))
	ds.SourceRef = f.URL
	return ds, nil
}

// ParseCSV parses the feed's CSV dialect: comma separated, quotes stripped,
// cells trimmed, short rows padded with empty strings. A feed with no data
// rows yields an empty dataset.
func ParseCSV(text string) Dataset {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 2 {
		return Dataset{}
	}

	headers := splitLine(lines[0])

	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := splitLine(line)
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(values) {
				rec[h] = values[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}

	return Dataset{Headers: headers, Records: records}
}

func splitLine(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.TrimSpace(p), `"`, "")
	}
	return parts
}
