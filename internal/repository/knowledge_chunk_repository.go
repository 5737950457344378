package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"

	"increm-coach/internal/model"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// KnowledgeChunkRepository keeps knowledge chunks in the relational database
// and scores them in process. It backs the "relational" vector store.
// A positive dimension is enforced on insert and on match.
type KnowledgeChunkRepository struct {
	db        *gorm.DB
	dimension int
}

func NewKnowledgeChunkRepository(db *gorm.DB, dimension int) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: db, dimension: dimension}
}

func (r *KnowledgeChunkRepository) checkDimension(n int) error {
	if r.dimension > 0 && n != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, r.dimension)
	}
	return nil
}

func (r *KnowledgeChunkRepository) Insert(ctx context.Context, chunk *model.KnowledgeChunk, embedding []float32) error {
	if err := r.checkDimension(len(embedding)); err != nil {
		return fmt.Errorf("insert knowledge chunk failed: %w", err)
	}
	chunk.SetEmbedding(embedding)
	if err := r.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return fmt.Errorf("insert knowledge chunk failed: %w", err)
	}
	return nil
}

// Match returns at most count chunks whose cosine similarity to query is
// strictly above threshold, best first. A stored row whose embedding does
// not have the query's dimension fails the search.
func (r *KnowledgeChunkRepository) Match(ctx context.Context, query []float32, threshold float64, count int) ([]model.ScoredChunk, error) {
	if count <= 0 || len(query) == 0 {
		return []model.ScoredChunk{}, nil
	}
	if err := r.checkDimension(len(query)); err != nil {
		return nil, fmt.Errorf("match knowledge chunks failed: %w", err)
	}

	var chunks []model.KnowledgeChunk
	if err := r.db.WithContext(ctx).Order("title ASC").Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("match knowledge chunks failed: %w", err)
	}

	matches := make([]model.ScoredChunk, 0, count)
	for i := range chunks {
		vec := chunks[i].EmbeddingVector()
		if len(vec) != len(query) {
			return nil, fmt.Errorf("match knowledge chunks failed: %w: chunk %s has %d, query has %d",
				ErrDimensionMismatch, chunks[i].ID, len(vec), len(query))
		}
		sim := CosineSimilarity(query, vec)
		if sim <= threshold {
			continue
		}
		matches = append(matches, model.ScoredChunk{KnowledgeChunk: chunks[i], Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

func (r *KnowledgeChunkRepository) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	result := r.db.WithContext(ctx).Where("title = ?", title).Delete(&model.KnowledgeChunk{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete knowledge chunks by title failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *KnowledgeChunkRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.KnowledgeChunk{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete all knowledge chunks failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *KnowledgeChunkRepository) Stats(ctx context.Context) ([]model.TitleCount, error) {
	var counts []model.TitleCount
	err := r.db.WithContext(ctx).
		Model(&model.KnowledgeChunk{}).
		Select("title, category, COUNT(*) AS chunks").
		Group("title, category").
		Order("title ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge chunk stats failed: %w", err)
	}
	return counts, nil
}

// CosineSimilarity returns 0 for empty or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
