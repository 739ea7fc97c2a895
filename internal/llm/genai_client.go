package llm

import (
	"context"
	"fmt"

	"genforge/internal/logging"

	"google.golang.org/genai"
)

// GenAIClient is the default Client implementation, backed by Google's
// Generative AI API. It is configured for deterministic output: temperature
// 0, top-p 1, fixed model id. No internal retry — a failed call surfaces
// immediately as an Error for the enclosing loop to handle.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient builds a GenAIClient for the given API key and model id.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: creating genai client: %w", err)
	}
	logging.LLM("genai client ready, model=%s", model)
	return &GenAIClient{client: client, model: model}, nil
}

// Complete issues a single deterministic completion call.
func (c *GenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := float32(0)
	topP := float32(1)

	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		TopP:        &topP,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("llm: genai generate content: %w", err)
	}
	return result.Text(), nil
}
