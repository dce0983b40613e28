package ai

import (
	"context"
	"errors"
	"fmt"
)

// Client provides both embedding and chat completion capabilities
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, system, user string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderStub   Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	ChatModel  string
	Dim        int
	ProjectID  string
	Location   string
	Provider   Provider
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// ZeroVector returns the all-zero embedding of the given dimension. It is the
// deterministic stand-in for content that could not be embedded; similarity
// search against it matches nothing.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// IsZeroVector reports whether v carries no embedding signal.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// StubClient is a stub implementation of the Client interface for testing
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// Embed implements the embedding functionality
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

// Complete implements the chat completion functionality
func (s *StubClient) Complete(ctx context.Context, system, user string) (string, error) {
	return fmt.Sprintf("stub completion (%d context chars)", len(system)), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
