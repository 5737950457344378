package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type CompletionClient struct {
	cfg        ChatConfig
	httpClient *http.Client
}

func NewCompletionClient(cfg ChatConfig, httpClient *http.Client) *CompletionClient {
	return &CompletionClient{cfg: cfg, httpClient: httpClient}
}

func (c *CompletionClient) CheckConfig() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return fmt.Errorf("%w: completion api key is missing", ErrConfiguration)
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" || strings.TrimSpace(c.cfg.Model) == "" {
		return fmt.Errorf("%w: completion base url or model is missing", ErrConfiguration)
	}
	return nil
}

// Complete sends the conversation to chat/completions and returns the first
// choice. max_tokens bounds the reply on the provider side.
func (c *CompletionClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := c.CheckConfig(); err != nil {
		return "", err
	}

	reqBody := map[string]interface{}{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": c.cfg.Temperature,
		"stream":      false,
	}
	if c.cfg.MaxTokens > 0 {
		reqBody["max_tokens"] = c.cfg.MaxTokens
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, c.httpClient, ErrCompletionService, c.cfg.BaseURL, c.cfg.APIKey, "/chat/completions", reqBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty llm choices", ErrCompletionService)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty llm message", ErrCompletionService)
	}
	return content, nil
}
