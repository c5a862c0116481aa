// Package llm wraps the language-model provider behind a small generation
// interface so the planner and llm-kind steps share one client.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider is the generation contract the rest of the engine depends on.
// Implementations may fail or time out; callers own the error policy.
type Provider interface {
	// Generate produces free text from a system and user prompt.
	Generate(ctx context.Context, system, user string) (string, error)
	// GenerateJSON produces a JSON document from a system and user prompt.
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// Config selects and configures the underlying provider.
type Config struct {
	Provider string // openai, anthropic, ollama
	Model    string
	APIKey   string
	BaseURL  string
}

// Client adapts a langchaingo model to the Provider interface.
type Client struct {
	model llms.Model
}

// New builds a client for the configured provider.
func New(cfg Config) (*Client, error) {
	model, err := createModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return &Client{model: model}, nil
}

func createModel(cfg Config) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Provider)
	}
}

// Generate implements Provider with deterministic, low-temperature prompting.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, system, user, false)
}

// GenerateJSON implements Provider with JSON mode enabled.
func (c *Client) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	return c.generate(ctx, system, user, true)
}

func (c *Client) generate(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	options := []llms.CallOption{llms.WithTemperature(0.1)}
	if jsonMode {
		options = append(options, llms.WithJSONMode())
	}

	response, err := c.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("provider returned no choices")
	}
	return response.Choices[0].Content, nil
}
