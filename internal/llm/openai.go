// Package llm implements the design.LLMClient contract on the OpenAI API.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Config holds LLM client configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// Client calls the chat completions endpoint. The core treats every
// response as untrusted text; parsing fallbacks live with the callers.
type Client struct {
	openai       openai.Client
	defaultModel string
	timeout      time.Duration
	logger       *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		openai:       openai.NewClient(opts...),
		defaultModel: model,
		timeout:      timeout,
		logger:       logger,
	}, nil
}

// Generate sends one user/system prompt pair and returns the raw text of
// the first choice. An empty model selects the configured default.
func (c *Client) Generate(ctx context.Context, model, userPrompt, systemPrompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Debug("llm generate completed",
		zap.String("model", model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// DefaultModel reports the model used when callers pass an empty name.
func (c *Client) DefaultModel() string {
	return c.defaultModel
}
