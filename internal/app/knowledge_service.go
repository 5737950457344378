package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"increm-coach/internal/knowledge"
	"increm-coach/internal/model"
	"increm-coach/internal/pkg/pdfextract"
	"increm-coach/internal/rag"
)

// KnowledgeStore is the vector store: pgvector or the relational fallback.
type KnowledgeStore interface {
	KnowledgeMatcher
	Insert(ctx context.Context, chunk *model.KnowledgeChunk, embedding []float32) error
	DeleteByTitle(ctx context.Context, title string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) ([]model.TitleCount, error)
}

type KnowledgeOptions struct {
	ChunkSize       int
	Concurrency     int
	DefaultCategory string
	SeedFile        string
	// Dimension, when positive, is the required embedding length.
	Dimension int
}

type KnowledgeService struct {
	store    KnowledgeStore
	embedder Embedder
	opts     KnowledgeOptions
}

type ChunkFailure struct {
	Title      string `json:"title"`
	ChunkIndex int    `json:"chunk_index"`
	Error      string `json:"error"`
}

type IngestReport struct {
	Documents    int            `json:"documents"`
	ChunksStored int            `json:"chunks_stored"`
	ChunksFailed int            `json:"chunks_failed"`
	Failures     []ChunkFailure `json:"failures,omitempty"`
}

type KnowledgeStats struct {
	TotalChunks int64              `json:"total_chunks"`
	Titles      []model.TitleCount `json:"titles"`
}

func NewKnowledgeService(store KnowledgeStore, embedder Embedder, opts KnowledgeOptions) *KnowledgeService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = rag.DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if strings.TrimSpace(opts.DefaultCategory) == "" {
		opts.DefaultCategory = "General"
	}
	return &KnowledgeService{store: store, embedder: embedder, opts: opts}
}

// Ingest chunks every document and embeds the chunks on a bounded pool.
// A title's stored chunks are replaced only when at least one of its new
// chunks embedded; otherwise the old chunks stay. A failed chunk does not
// stop the others and the report lists it. If nothing could be stored the
// report comes back with ErrIngestFailed.
func (s *KnowledgeService) Ingest(ctx context.Context, docs []model.KnowledgeDocument) (*IngestReport, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", ErrInvalidInput)
	}

	var planned []*model.KnowledgeChunk
	var titles []string
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		title := strings.TrimSpace(doc.Title)
		content := strings.TrimSpace(doc.Content)
		if title == "" || content == "" {
			return nil, fmt.Errorf("%w: document %d needs title and content", ErrInvalidInput, i)
		}
		if _, dup := seen[title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrInvalidInput, title)
		}
		seen[title] = struct{}{}
		titles = append(titles, title)

		category := strings.TrimSpace(doc.Category)
		if category == "" {
			category = s.opts.DefaultCategory
		}
		pieces := rag.ChunkText(content, s.opts.ChunkSize)
		if len(pieces) == 0 {
			return nil, fmt.Errorf("%w: document %q has no text", ErrInvalidInput, title)
		}
		for idx, piece := range pieces {
			planned = append(planned, &model.KnowledgeChunk{
				ID:          uuid.NewString(),
				Title:       title,
				FullContent: content,
				ChunkText:   piece,
				Category:    category,
				ChunkIndex:  idx,
				ChunkCount:  len(pieces),
			})
		}
	}

	if err := s.embedder.CheckConfig(); err != nil {
		return nil, err
	}

	report := &IngestReport{Documents: len(docs)}
	fail := func(chunk *model.KnowledgeChunk, err error) {
		log.Printf("ingest chunk %q #%d failed: %v", chunk.Title, chunk.ChunkIndex, err)
		report.ChunksFailed++
		report.Failures = append(report.Failures, ChunkFailure{
			Title:      chunk.Title,
			ChunkIndex: chunk.ChunkIndex,
			Error:      err.Error(),
		})
	}

	embeddings := make([][]float32, len(planned))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, chunk := range planned {
		g.Go(func() error {
			embedding, err := s.embedChunk(ctx, chunk)
			if err != nil {
				mu.Lock()
				fail(chunk, err)
				mu.Unlock()
				return nil
			}
			embeddings[i] = embedding
			return nil
		})
	}
	_ = g.Wait()

	ready := make(map[string][]int, len(titles))
	for i, chunk := range planned {
		if embeddings[i] != nil {
			ready[chunk.Title] = append(ready[chunk.Title], i)
		}
	}
	for _, title := range titles {
		idxs := ready[title]
		if len(idxs) == 0 {
			log.Printf("ingest %q: no chunk embedded, keeping stored chunks", title)
			continue
		}
		if _, err := s.store.DeleteByTitle(ctx, title); err != nil {
			return nil, fmt.Errorf("replace knowledge %q failed: %w", title, err)
		}
		for _, i := range idxs {
			if err := s.store.Insert(ctx, planned[i], embeddings[i]); err != nil {
				fail(planned[i], err)
				continue
			}
			report.ChunksStored++
		}
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		a, b := report.Failures[i], report.Failures[j]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	if report.ChunksStored == 0 {
		return report, fmt.Errorf("%w: %d chunks failed", ErrIngestFailed, report.ChunksFailed)
	}
	return report, nil
}

func (s *KnowledgeService) embedChunk(ctx context.Context, chunk *model.KnowledgeChunk) ([]float32, error) {
	embedding, err := s.embedder.Embed(ctx, chunk.ChunkText)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, errors.New("embedding is empty")
	}
	if s.opts.Dimension > 0 && len(embedding) != s.opts.Dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(embedding), s.opts.Dimension)
	}
	return embedding, nil
}

// IngestDocument ingests a single document; used by the directory watcher.
func (s *KnowledgeService) IngestDocument(ctx context.Context, doc model.KnowledgeDocument) error {
	report, err := s.Ingest(ctx, []model.KnowledgeDocument{doc})
	if err != nil {
		return err
	}
	if report.ChunksFailed > 0 {
		return fmt.Errorf("ingest %q: %d of %d chunks failed", doc.Title, report.ChunksFailed, report.ChunksFailed+report.ChunksStored)
	}
	return nil
}

// Seed ingests the documents of the configured YAML seed file.
func (s *KnowledgeService) Seed(ctx context.Context) (*IngestReport, error) {
	if strings.TrimSpace(s.opts.SeedFile) == "" {
		return nil, fmt.Errorf("%w: no seed file configured", ErrInvalidInput)
	}
	docs, err := knowledge.LoadSeed(s.opts.SeedFile)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, docs)
}

// IngestPDF extracts the text of an uploaded PDF and ingests it under title.
func (s *KnowledgeService) IngestPDF(ctx context.Context, title, category string, r io.ReaderAt, size int64) (*IngestReport, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	text, err := pdfextract.ExtractText(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: pdf has no extractable text", ErrInvalidInput)
	}
	return s.Ingest(ctx, []model.KnowledgeDocument{{Title: title, Category: category, Content: text}})
}

func (s *KnowledgeService) Clear(ctx context.Context) (int64, error) {
	return s.store.DeleteAll(ctx)
}

func (s *KnowledgeService) Stats(ctx context.Context) (*KnowledgeStats, error) {
	titles, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats := &KnowledgeStats{Titles: titles}
	if stats.Titles == nil {
		stats.Titles = []model.TitleCount{}
	}
	for _, t := range titles {
		stats.TotalChunks += t.Chunks
	}
	return stats, nil
}
