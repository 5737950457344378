package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"increm-coach/internal/model"
)

// PGVectorChunkRepository stores knowledge chunks in PostgreSQL with a native
// pgvector column and lets the database rank them.
type PGVectorChunkRepository struct {
	pool *pgxpool.Pool
}

func NewPGVectorChunkRepository(pool *pgxpool.Pool) *PGVectorChunkRepository {
	return &PGVectorChunkRepository{pool: pool}
}

func (r *PGVectorChunkRepository) Insert(ctx context.Context, chunk *model.KnowledgeChunk, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	err := r.pool.QueryRow(ctx,
		`INSERT INTO knowledge_chunks (id, title, full_content, chunk_text, embedding, category, chunk_index, chunk_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		chunk.ID, chunk.Title, chunk.FullContent, chunk.ChunkText, vec,
		chunk.Category, chunk.ChunkIndex, chunk.ChunkCount,
	).Scan(&chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert knowledge chunk failed: %w", err)
	}
	return nil
}

func (r *PGVectorChunkRepository) Match(ctx context.Context, query []float32, threshold float64, count int) ([]model.ScoredChunk, error) {
	if count <= 0 || len(query) == 0 {
		return []model.ScoredChunk{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, full_content, chunk_text, category, chunk_index, chunk_count, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM knowledge_chunks
		 WHERE 1 - (embedding <=> $1) > $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(query), threshold, count,
	)
	if err != nil {
		return nil, fmt.Errorf("match knowledge chunks failed: %w", err)
	}
	defer rows.Close()

	matches := make([]model.ScoredChunk, 0, count)
	for rows.Next() {
		var m model.ScoredChunk
		if err := rows.Scan(
			&m.ID, &m.Title, &m.FullContent, &m.ChunkText, &m.Category,
			&m.ChunkIndex, &m.ChunkCount, &m.CreatedAt, &m.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk failed: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match knowledge chunks failed: %w", err)
	}
	return matches, nil
}

func (r *PGVectorChunkRepository) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE title = $1`, title)
	if err != nil {
		return 0, fmt.Errorf("delete knowledge chunks by title failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGVectorChunkRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM knowledge_chunks`)
	if err != nil {
		return 0, fmt.Errorf("delete all knowledge chunks failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGVectorChunkRepository) Stats(ctx context.Context) ([]model.TitleCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT title, category, COUNT(*) FROM knowledge_chunks
		 GROUP BY title, category
		 ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("knowledge chunk stats failed: %w", err)
	}
	defer rows.Close()

	var counts []model.TitleCount
	for rows.Next() {
		var c model.TitleCount
		if err := rows.Scan(&c.Title, &c.Category, &c.Chunks); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk stats failed: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
