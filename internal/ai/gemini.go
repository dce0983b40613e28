package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewGeminiClient creates a new client for the Google Gemini API. When an API
// key is configured the Gemini API backend is used; otherwise the client falls
// back to Vertex AI with the configured project and location.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.EmbedModel == "" {
		config.EmbedModel = "embedding-001"
	}
	if config.ChatModel == "" {
		config.ChatModel = "gemini-2.0-flash-lite"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = config.APIKey
	} else {
		cc.Backend = genai.BackendVertexAI
		cc.Project = config.ProjectID
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
	}, nil
}

// Embed implements the embedding functionality using the Gemini API
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if res == nil || len(res.Embeddings) == 0 {
		return nil, errors.New("no embedding returned")
	}

	return res.Embeddings[0].Values, nil
}

// Complete implements the chat completion functionality using the Gemini API
func (c *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	prompt := genai.Text(system)
	temp := float32(0.4)
	maxTokens := int32(1024)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   maxTokens,
		SystemInstruction: prompt[0],
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.ChatModel, genai.Text(user), &cfg)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no completion returned")
	}

	return strings.TrimSpace(string(resp.Candidates[0].Content.Parts[0].Text)), nil
}

func (c *GeminiClient) Dim() int {
	return c.config.Dim
}
