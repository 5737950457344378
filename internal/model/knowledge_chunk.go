package model

import (
	"encoding/json"
	"time"
)

// KnowledgeChunk is one embedded passage of a knowledge document.
// Embedding is stored as a JSON array of float32 for the relational backend;
// the pgvector backend keeps it in a native vector column instead.
type KnowledgeChunk struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"size:256;not null;uniqueIndex:idx_chunk_title_index,priority:1" json:"title"`
	FullContent string    `gorm:"type:text;not null" json:"full_content"`
	ChunkText   string    `gorm:"type:text;not null" json:"chunk_text"`
	Embedding   string    `gorm:"type:mediumtext" json:"-"`
	Category    string    `gorm:"size:64;not null;index" json:"category"`
	ChunkIndex  int       `gorm:"not null;uniqueIndex:idx_chunk_title_index,priority:2" json:"chunk_index"`
	ChunkCount  int       `gorm:"not null" json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *KnowledgeChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *KnowledgeChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

// ScoredChunk is a search hit with its similarity to the query.
type ScoredChunk struct {
	KnowledgeChunk
	Similarity float64 `json:"similarity"`
}

// TitleCount summarizes how many chunks a knowledge title has.
type TitleCount struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Chunks   int64  `json:"chunks"`
}
