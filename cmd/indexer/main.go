package main

import (
	"context"
	"log"

	"github.com/fatih/color"
	"github.com/finore/finore/internal/ai"
	"github.com/finore/finore/internal/config"
	"github.com/finore/finore/internal/indexer"
	"github.com/finore/finore/internal/source"
	"github.com/finore/finore/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("finore-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	var clientConfig *ai.ClientConfig
	switch cfg.Provider {
	case "openai":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}
	case "gemini", "google":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderGemini,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatalf("unsupported provider: %s", cfg.Provider)
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal(err)
	}

	if c.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	if err := st.Migrate(ctx, c.Dim()); err != nil {
		log.Fatal(err)
	}

	var fetcher source.Fetcher
	if cfg.CSVURL != "" {
		fetcher = source.NewFeed(cfg.CSVURL)
	} else {
		fetcher = source.NewDir(cfg.DataDir)
	}

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal(err)
	}

	pipeline := indexer.NewPipeline(st, c, fetcher, chunker, cfg.SourceTag)

	res, err := pipeline.Run(ctx)
	if err != nil {
		color.Red("reindex failed: %v", err)
		log.Fatal(err)
	}

	if res.Reindexed {
		color.Green("✔ %s", res.Message)
	} else {
		color.Yellow("– %s", res.Message)
	}
}
