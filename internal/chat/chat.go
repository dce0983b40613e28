// Package chat orchestrates the read path: validate the request, retrieve
// grounding context, assemble the prompt and call the completion model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finore/finore/internal/ai"
	"github.com/finore/finore/internal/retrieval"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds the completion call.
const DefaultTimeout = 30 * time.Second

// Validation errors, mapped to 400 by the HTTP layer.
var (
	ErrMissingMessages = errors.New("messages array required")
	ErrEmptyMessage    = errors.New("user message required")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages []Message `json:"messages"`
}

type Response struct {
	Content     string `json:"content"`
	ContextUsed int    `json:"contextUsed"`
}

type Service struct {
	Client    ai.Client
	Retriever *retrieval.Service
	Assembler *retrieval.Assembler
	Timeout   time.Duration
}

func NewService(client ai.Client, retriever *retrieval.Service, assembler *retrieval.Assembler) *Service {
	return &Service{
		Client:    client,
		Retriever: retriever,
		Assembler: assembler,
		Timeout:   DefaultTimeout,
	}
}

// Answer handles one chat turn. The last message's content is the query.
// Completion failures and timeouts degrade to a deterministic apology that
// names the amount of available context; they are not surfaced as errors.
func (s *Service) Answer(ctx context.Context, req Request) (Response, error) {
	query, err := extractQuery(req)
	if err != nil {
		return Response{}, err
	}

	rctx, err := s.Retriever.Retrieve(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve context: %w", err)
	}

	system := s.Assembler.Build(rctx)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.Client.Complete(cctx, system, query)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Int("context_used", rctx.Used).Msg("completion failed, returning fallback response")
		text = fallbackResponse(rctx.Used)
	}

	return Response{Content: text, ContextUsed: rctx.Used}, nil
}

func extractQuery(req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrMissingMessages
	}
	query := strings.TrimSpace(req.Messages[len(req.Messages)-1].Content)
	if query == "" {
		return "", ErrEmptyMessage
	}
	return query, nil
}

func fallbackResponse(contextUsed int) string {
	return fmt.Sprintf(
		"Lo siento, no puedo generar una respuesta en este momento. Tengo %d fragmentos de contexto disponibles; por favor intenta de nuevo en unos minutos.",
		contextUsed,
	)
}
