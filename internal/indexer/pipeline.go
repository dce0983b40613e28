package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finore/finore/internal/ai"
	"github.com/finore/finore/internal/source"
	"github.com/finore/finore/internal/store"
	"github.com/finore/finore/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultWorkers      = 4
	defaultEmbedTimeout = 30 * time.Second
)

// Result reports the outcome of one indexing pass.
type Result struct {
	Reindexed      bool   `json:"reindexed"`
	ChunksInserted int    `json:"chunksInserted"`
	Message        string `json:"message"`
}

// Pipeline runs the write path: fetch, detect change, serialize, chunk,
// embed, replace the stored batch. One run is a single synchronous job;
// concurrent runs must be serialized by the caller.
type Pipeline struct {
	Store     store.ChunkStore
	Client    ai.Client
	Fetcher   source.Fetcher
	Chunker   *Chunker
	SourceTag string

	// Workers bounds the embedding pool; EmbedTimeout caps each upstream
	// call. Zero values select the defaults.
	Workers      int
	EmbedTimeout time.Duration
}

func NewPipeline(st store.ChunkStore, client ai.Client, fetcher source.Fetcher, chunker *Chunker, sourceTag string) *Pipeline {
	return &Pipeline{
		Store:     st,
		Client:    client,
		Fetcher:   fetcher,
		Chunker:   chunker,
		SourceTag: sourceTag,
	}
}

// Run executes one indexing pass. An unchanged dataset digest short-circuits
// without touching the store; otherwise the previous batch for the source tag
// is replaced wholesale. A failed fetch also short-circuits: the stored batch
// is the only durable artifact and an upstream outage must not delete it.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	ds, err := p.Fetcher.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("feed fetch failed, keeping existing index")
		return Result{Reindexed: false, ChunksInserted: 0, Message: "feed unavailable, index unchanged"}, nil
	}
	log.Info().Int("records", len(ds.Records)).Msg("fetched source records")

	rows := SerializeDataset(ds)
	digest := DatasetDigest(rows)

	prev, err := p.Store.LatestDataHash(ctx, p.SourceTag)
	if err != nil && !errors.Is(err, store.ErrNoChunks) {
		return Result{}, fmt.Errorf("look up last indexed hash: %w", err)
	}
	if err == nil && prev == digest {
		log.Info().Str("data_hash", digest).Msg("dataset unchanged, skipping reindex")
		return Result{Reindexed: false, ChunksInserted: 0, Message: "data already current"}, nil
	}

	type workItem struct {
		seq      int
		rowIndex int
		content  string
	}
	var work []workItem
	for i, row := range rows {
		for _, piece := range p.Chunker.Split(row) {
			work = append(work, workItem{seq: len(work), rowIndex: i, content: piece})
		}
	}

	// Embed with a bounded pool. Every item carries its origin sequence so
	// results can be re-sorted into insertion order; store tie-breaks and the
	// leader/laggard selection depend on that order being stable.
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := p.EmbedTimeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}

	type embedded struct {
		seq int
		vec []float32
	}
	workChan := make(chan workItem, workers*2)
	results := make(chan embedded, len(work))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				results <- embedded{seq: item.seq, vec: p.embed(ctx, timeout, item.content)}
			}
		}()
	}
	for _, item := range work {
		workChan <- item
	}
	close(workChan)
	wg.Wait()
	close(results)

	vectors := make([]embedded, 0, len(work))
	for r := range results {
		vectors = append(vectors, r)
	}
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].seq < vectors[j].seq })

	now := time.Now().UTC()
	chunks := make([]models.Chunk, len(work))
	for i, item := range work {
		chunks[i] = models.Chunk{
			ID:      uuid.NewString(),
			Content: item.content,
			Metadata: models.ChunkMetadata{
				Source:    p.SourceTag,
				RowIndex:  item.rowIndex,
				SheetRef:  ds.SourceRef,
				DataHash:  digest,
				IndexedAt: now,
			},
			Embedding: vectors[i].vec,
		}
	}

	// Full replace is best-effort, not transactional: a failed delete is
	// logged and the insert still runs, which can leave duplicate chunks
	// from the previous batch behind.
	if err := p.Store.DeleteBySource(ctx, p.SourceTag); err != nil {
		log.Error().Err(err).Str("source", p.SourceTag).Msg("delete of previous batch failed, inserting anyway")
	}

	if len(chunks) > 0 {
		if err := p.Store.InsertBatch(ctx, chunks); err != nil {
			return Result{}, fmt.Errorf("insert chunk batch: %w", err)
		}
	}

	log.Info().Int("chunks", len(chunks)).Str("data_hash", digest).Msg("reindex complete")
	return Result{
		Reindexed:      true,
		ChunksInserted: len(chunks),
		Message:        fmt.Sprintf("indexed %d chunks (revision %s)", len(chunks), shortHash(digest)),
	}, nil
}

// shortHash abbreviates a dataset digest for human-facing messages.
func shortHash(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// embed wraps one upstream embedding call. Failures degrade to the zero
// vector so a bad chunk never aborts the batch.
func (p *Pipeline) embed(ctx context.Context, timeout time.Duration, text string) []float32 {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := p.Client.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		log.Warn().Err(err).Msg("embedding failed, storing zero vector")
		return ai.ZeroVector(p.Client.Dim())
	}
	return vec
}
