package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/finore/finore/internal/source"
)

// SerializeRow converts one raw record into its canonical text block: a row
// header followed by one "field: value" line per column, in feed header
// order. The same record always serializes to the same text.
func SerializeRow(headers []string, rec source.Record, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fila de la hoja de cálculo #%d:\n", index+1)
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\n", h, rec[h])
	}
	return strings.TrimRight(b.String(), "\n")
}

// SerializeDataset returns the canonical text of every record, in feed order.
func SerializeDataset(ds source.Dataset) []string {
	rows := make([]string, len(ds.Records))
	for i, rec := range ds.Records {
		rows[i] = SerializeRow(ds.Headers, rec, i)
	}
	return rows
}

// DatasetDigest computes the content digest of the serialized dataset. Equal
// digests mean the feed has not changed since the last indexed batch.
func DatasetDigest(rows []string) string {
	h := sha256.New()
	for _, r := range rows {
		h.Write([]byte(r))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
