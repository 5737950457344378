package app

import (
	"context"
	"strings"
)

// EmbeddingService backs the generate-embeddings endpoint.
type EmbeddingService struct {
	embedder Embedder
}

func NewEmbeddingService(embedder Embedder) *EmbeddingService {
	return &EmbeddingService{embedder: embedder}
}

func (s *EmbeddingService) Generate(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	if err := s.embedder.CheckConfig(); err != nil {
		return nil, err
	}
	return s.embedder.Embed(ctx, text)
}
