package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"increm-coach/internal/ai"
	"increm-coach/internal/model"
)

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	configErr error
	err       error
	failOn    map[string]bool
}

func (f *fakeEmbedder) CheckConfig() error { return f.configErr }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn[text] {
		return nil, fmt.Errorf("%w: rejected %q", ai.ErrEmbeddingService, text)
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeCompleter struct {
	calls    int
	messages []ai.ChatMessage
	reply    string
	err      error
}

func (f *fakeCompleter) CheckConfig() error { return nil }

func (f *fakeCompleter) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeStore struct {
	mu        sync.Mutex
	matches   []model.ScoredChunk
	matchErr  error
	inserted  []model.KnowledgeChunk
	deleted   []string
	insertErr error
}

func (f *fakeStore) Match(ctx context.Context, query []float32, threshold float64, count int) ([]model.ScoredChunk, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matches, nil
}

func (f *fakeStore) Insert(ctx context.Context, chunk *model.KnowledgeChunk, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, *chunk)
	return nil
}

func (f *fakeStore) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, title)
	kept := f.inserted[:0]
	var n int64
	for _, c := range f.inserted {
		if c.Title == title {
			n++
			continue
		}
		kept = append(kept, c)
	}
	f.inserted = kept
	return n, nil
}

func (f *fakeStore) DeleteAll(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.inserted))
	f.inserted = nil
	return n, nil
}

func (f *fakeStore) Stats(ctx context.Context) ([]model.TitleCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int64{}
	var order []string
	for _, c := range f.inserted {
		if _, ok := counts[c.Title]; !ok {
			order = append(order, c.Title)
		}
		counts[c.Title]++
	}
	out := make([]model.TitleCount, 0, len(order))
	for _, t := range order {
		out = append(out, model.TitleCount{Title: t, Chunks: counts[t]})
	}
	return out, nil
}

type appendedPair struct {
	userID, userText, assistantText string
	sources                         *string
	ctxErr                          error
}

type fakeTurns struct {
	appended  []appendedPair
	appendErr error
	history   []model.ConversationTurn
	loads     int
}

func (f *fakeTurns) Append(ctx context.Context, userID, userText, assistantText string, sources *string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedPair{userID, userText, assistantText, sources, ctx.Err()})
	return nil
}

func (f *fakeTurns) LoadHistory(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, error) {
	f.loads++
	var out []model.ConversationTurn
	for _, t := range f.history {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeCache struct {
	entries     map[string][]model.ConversationTurn
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]model.ConversationTurn{}}
}

func (f *fakeCache) key(userID string, limit int) string { return fmt.Sprintf("%s/%d", userID, limit) }

func (f *fakeCache) Get(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	turns, ok := f.entries[f.key(userID, limit)]
	return turns, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, userID string, limit int, turns []model.ConversationTurn) error {
	f.entries[f.key(userID, limit)] = turns
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	for k := range f.entries {
		delete(f.entries, k)
	}
	return nil
}

var errBoom = errors.New("boom")
