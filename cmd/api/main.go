package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/finore/finore/internal/ai"
	"github.com/finore/finore/internal/analytics"
	"github.com/finore/finore/internal/auth"
	"github.com/finore/finore/internal/chat"
	"github.com/finore/finore/internal/config"
	"github.com/finore/finore/internal/indexer"
	"github.com/finore/finore/internal/retrieval"
	"github.com/finore/finore/internal/source"
	"github.com/finore/finore/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("finore-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting finore api")

	clientConfig, err := buildClientConfig(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	dim := c.Dim()
	if dim == 0 {
		log.Fatal("embedding dimension must be set")
	}
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.Migrate(ctx, dim); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	fetcher := buildFetcher(cfg)

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Invalid chunker configuration: %v", err)
	}
	pipeline := indexer.NewPipeline(st, c, fetcher, chunker, cfg.SourceTag)

	retriever := retrieval.NewService(c, st)
	retriever.Threshold = cfg.Threshold
	retriever.TopK = cfg.TopK
	assembler := retrieval.NewAssembler(cfg.ContextBudget)
	chatSvc := chat.NewService(c, retriever, assembler)

	engine := analytics.NewEngine(
		fetcher,
		analytics.NewAggregator(analytics.StaticCompliance{Value: cfg.GlobalCompliance}),
		analytics.Rates{
			GlobalCompliance: cfg.GlobalCompliance,
			RestructureRate:  cfg.RestructureRate,
			DebtPurchaseRate: cfg.DebtPurchaseRate,
		},
	)

	authSvc := auth.New(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		JwtSecret: cfg.Auth.JwtSecret,
		Username:  cfg.Auth.Username,
		Password:  cfg.Auth.Password,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// Auth status endpoint (always available)
	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": authSvc.Enabled()})
	})

	if authSvc.Enabled() {
		logger.Info().Msg("authentication is enabled")

		mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var body struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			token, err := authSvc.Login(body.Username, body.Password)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     "auth_token",
				Value:    token,
				Path:     "/",
				MaxAge:   86400, // 24 hours
				HttpOnly: true,
				Secure:   strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https"),
				SameSite: http.SameSiteLaxMode,
			})
			writeJSON(w, http.StatusOK, map[string]string{"token": token})
		})

		mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.TokenFromRequest(r)
			if tokenString == "" {
				http.Error(w, "No authentication token", http.StatusUnauthorized)
				return
			}
			claims, err := authSvc.Validate(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"username": claims.Username})
		})

		mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:   "auth_token",
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			w.WriteHeader(http.StatusOK)
		})
	} else {
		logger.Info().Msg("authentication is disabled - running in open mode")
	}

	// Reindex runs are single-flight: the store replace is delete-then-insert
	// and concurrent runs would race into duplicate chunks.
	var reindexMu sync.Mutex
	mux.HandleFunc("/reindex", authSvc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !reindexMu.TryLock() {
			writeError(w, http.StatusConflict, "reindex already in progress")
			return
		}
		defer reindexMu.Unlock()

		start := time.Now()
		res, err := pipeline.Run(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        res.Message,
			"chunksInserted": res.ChunksInserted,
		})
		hlog.FromRequest(r).Info().Int("chunks", res.ChunksInserted).Dur("dur", time.Since(start)).Msg("reindex served")
	}))

	mux.HandleFunc("/chat", authSvc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chat.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, chat.ErrMissingMessages.Error())
			return
		}

		resp, err := chatSvc.Answer(r.Context(), req)
		if err != nil {
			if errors.Is(err, chat.ErrMissingMessages) || errors.Is(err, chat.ErrEmptyMessage) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	mux.HandleFunc("/dashboard", authSvc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, engine.Dashboard(ctx))
	}))

	mux.HandleFunc("/records", authSvc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		ds, err := fetcher.Fetch(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("feed fetch failed, returning empty records")
			ds = source.Dataset{}
		}
		if ds.Records == nil {
			ds.Records = []source.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": ds.Records})
	}))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

func buildClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}, nil
	case "gemini", "google":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderGemini,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func buildFetcher(cfg config.Specification) source.Fetcher {
	if strings.TrimSpace(cfg.CSVURL) != "" {
		return source.NewFeed(cfg.CSVURL)
	}
	return source.NewDir(cfg.DataDir)
}
