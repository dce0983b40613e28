// Package retrieval grounds chat answers in the indexed financial data.
package retrieval

import (
	"context"
	"strings"

	"github.com/finore/finore/internal/ai"
	"github.com/finore/finore/internal/store"
	"github.com/rs/zerolog/log"
)

// NoContextSentinel is returned instead of an empty string when nothing
// clears the similarity threshold, so prompt assembly stays well-formed.
const NoContextSentinel = "no relevant information found"

const (
	DefaultThreshold = 0.1
	DefaultTopK      = 5
)

// Context is the ranked retrieved material for one query.
type Context struct {
	Chunks []string
	Used   int
}

// Text concatenates the retrieved chunks in rank order, or returns the
// sentinel when nothing was retrieved.
func (c Context) Text() string {
	if len(c.Chunks) == 0 {
		return NoContextSentinel
	}
	return strings.Join(c.Chunks, "\n\n")
}

// Service retrieves ranked context chunks for a query.
type Service struct {
	Client    ai.Client
	Store     store.ChunkStore
	Threshold float64
	TopK      int
}

func NewService(client ai.Client, st store.ChunkStore) *Service {
	return &Service{
		Client:    client,
		Store:     st,
		Threshold: DefaultThreshold,
		TopK:      DefaultTopK,
	}
}

// Retrieve embeds the query and collects the chunks above the similarity
// threshold, best first. An unembeddable query yields no context rather than
// an error: the zero vector carries no signal and must not be searched as if
// it were a real embedding.
func (s *Service) Retrieve(ctx context.Context, query string) (Context, error) {
	query = strings.TrimSpace(query)

	vec, err := s.Client.Embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("query embedding failed, answering without context")
		vec = ai.ZeroVector(s.Client.Dim())
	}
	if ai.IsZeroVector(vec) {
		return Context{}, nil
	}

	res, err := s.Store.Search(ctx, vec, s.Threshold, s.TopK)
	if err != nil {
		return Context{}, err
	}

	chunks := make([]string, 0, len(res))
	for _, r := range res {
		chunks = append(chunks, r.Chunk.Content)
	}
	return Context{Chunks: chunks, Used: len(chunks)}, nil
}
