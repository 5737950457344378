package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
}

func NewEmbeddingClient(cfg EmbeddingConfig, httpClient *http.Client) *EmbeddingClient {
	return &EmbeddingClient{cfg: cfg, httpClient: httpClient}
}

// CheckConfig reports ErrConfiguration when the client cannot make calls.
func (c *EmbeddingClient) CheckConfig() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return fmt.Errorf("%w: embedding api key is missing", ErrConfiguration)
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" || strings.TrimSpace(c.cfg.Model) == "" {
		return fmt.Errorf("%w: embedding base url or model is missing", ErrConfiguration)
	}
	return nil
}

// Embed returns the embedding vector for the given text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.CheckConfig(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: embedding input is empty", ErrEmbeddingService)
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"input": text,
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, c.httpClient, ErrEmbeddingService, c.cfg.BaseURL, c.cfg.APIKey, "/embeddings", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbeddingService)
	}
	return parsed.Data[0].Embedding, nil
}
