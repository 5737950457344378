package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"increm-coach/internal/ai"
	"increm-coach/internal/model"
	"increm-coach/internal/rag"
)

func newChat(emb *fakeEmbedder, comp *fakeCompleter, store *fakeStore, turns *fakeTurns, cache HistoryCache) *ChatService {
	return NewChatService(emb, comp, store, turns, turns, cache, ChatOptions{MatchThreshold: 0.7, MatchCount: 5})
}

func hit(title, text string) model.ScoredChunk {
	return model.ScoredChunk{KnowledgeChunk: model.KnowledgeChunk{Title: title, ChunkText: text}, Similarity: 0.9}
}

func TestReply_HappyPath(t *testing.T) {
	emb := &fakeEmbedder{}
	comp := &fakeCompleter{reply: "Aim for 1.6g per kg."}
	store := &fakeStore{matches: []model.ScoredChunk{
		hit("Protein Intake", "1.6-2.2 grams per kilogram"),
		hit("Protein Intake", "Spread intake throughout the day"),
	}}
	turns := &fakeTurns{}
	cache := newFakeCache()

	res, err := newChat(emb, comp, store, turns, cache).Reply(context.Background(), ChatInput{Message: "How much protein?", UserID: "u1"})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if res.Response != "Aim for 1.6g per kg." || res.DocumentsUsed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Sources == nil || *res.Sources != "Protein Intake" {
		t.Fatalf("unexpected sources: %v", res.Sources)
	}
	if !strings.Contains(comp.messages[0].Content, "1.6-2.2 grams per kilogram\n\nSpread intake") {
		t.Errorf("context missing from system prompt: %q", comp.messages[0].Content)
	}
	if len(turns.appended) != 1 {
		t.Fatalf("expected one persisted pair, got %d", len(turns.appended))
	}
	p := turns.appended[0]
	if p.userID != "u1" || p.userText != "How much protein?" || p.assistantText != "Aim for 1.6g per kg." || p.sources != res.Sources {
		t.Errorf("unexpected persisted pair: %+v", p)
	}
	if len(cache.invalidated) != 1 {
		t.Errorf("expected history cache invalidation")
	}
}

func TestReply_NoResultsUsesFallback(t *testing.T) {
	comp := &fakeCompleter{reply: "General advice."}
	turns := &fakeTurns{}

	res, err := newChat(&fakeEmbedder{}, comp, &fakeStore{}, turns, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if res.Sources != nil || res.DocumentsUsed != 0 {
		t.Fatalf("expected no sources, got %+v", res)
	}
	if !strings.Contains(comp.messages[0].Content, rag.NoContextFallback) {
		t.Fatal("fallback context missing")
	}
	if turns.appended[0].sources != nil {
		t.Fatal("persisted sources should be nil")
	}
}

func TestReply_MissingFieldsTouchesNothing(t *testing.T) {
	emb := &fakeEmbedder{}
	comp := &fakeCompleter{}
	turns := &fakeTurns{}
	svc := newChat(emb, comp, &fakeStore{}, turns, nil)

	for _, in := range []ChatInput{{Message: "hi"}, {UserID: "u1"}, {Message: "  ", UserID: "u1"}} {
		if _, err := svc.Reply(context.Background(), in); !errors.Is(err, ErrMissingChatFields) {
			t.Fatalf("expected ErrMissingChatFields for %+v, got %v", in, err)
		}
	}
	if emb.calls != 0 || comp.calls != 0 || len(turns.appended) != 0 {
		t.Fatal("no external call expected")
	}
}

func TestReply_ConfigurationError(t *testing.T) {
	emb := &fakeEmbedder{configErr: ai.ErrConfiguration}
	_, err := newChat(emb, &fakeCompleter{}, &fakeStore{}, &fakeTurns{}, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})
	if !errors.Is(err, ai.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if emb.calls != 0 {
		t.Fatal("embedder must not be called when unconfigured")
	}
}

func TestReply_EmbeddingFailure(t *testing.T) {
	comp := &fakeCompleter{}
	emb := &fakeEmbedder{err: ai.ErrEmbeddingService}
	_, err := newChat(emb, comp, &fakeStore{}, &fakeTurns{}, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})

	var turnErr *TurnError
	if !errors.As(err, &turnErr) || turnErr.Stage != StageEmbeddingInFlight {
		t.Fatalf("expected embedding stage error, got %v", err)
	}
	if comp.calls != 0 {
		t.Fatal("completion must not run after embedding failure")
	}
}

func TestReply_CompletionFailurePersistsNothing(t *testing.T) {
	turns := &fakeTurns{}
	comp := &fakeCompleter{err: ai.ErrCompletionService}
	_, err := newChat(&fakeEmbedder{}, comp, &fakeStore{}, turns, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})

	var turnErr *TurnError
	if !errors.As(err, &turnErr) || turnErr.Stage != StageCompletionInFlight {
		t.Fatalf("expected completion stage error, got %v", err)
	}
	if !errors.Is(err, ai.ErrCompletionService) {
		t.Fatalf("expected completion service error, got %v", err)
	}
	if len(turns.appended) != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestReply_SearchFailureDegrades(t *testing.T) {
	comp := &fakeCompleter{reply: "ok"}
	store := &fakeStore{matchErr: errBoom}
	res, err := newChat(&fakeEmbedder{}, comp, store, &fakeTurns{}, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})
	if err != nil {
		t.Fatalf("search failure should not fail the turn: %v", err)
	}
	if res.DocumentsUsed != 0 || res.Sources != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(comp.messages[0].Content, rag.NoContextFallback) {
		t.Fatal("expected fallback context")
	}
}

func TestReply_PersistenceFailureSwallowed(t *testing.T) {
	turns := &fakeTurns{appendErr: errBoom}
	res, err := newChat(&fakeEmbedder{}, &fakeCompleter{reply: "ok"}, &fakeStore{}, turns, nil).Reply(context.Background(), ChatInput{Message: "hi", UserID: "u1"})
	if err != nil || res.Response != "ok" {
		t.Fatalf("expected success despite storage failure, got %v", err)
	}
}

func TestReply_PersistsAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	turns := &fakeTurns{}
	comp := &cancelingCompleter{cancel: cancel}

	svc := NewChatService(&fakeEmbedder{}, comp, &fakeStore{}, turns, turns, nil, ChatOptions{})
	if _, err := svc.Reply(ctx, ChatInput{Message: "hi", UserID: "u1"}); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if len(turns.appended) != 1 || turns.appended[0].ctxErr != nil {
		t.Fatalf("expected persistence on an uncancelled context, got %+v", turns.appended)
	}
}

type cancelingCompleter struct {
	cancel context.CancelFunc
}

func (c *cancelingCompleter) CheckConfig() error { return nil }

func (c *cancelingCompleter) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	c.cancel()
	return "done", nil
}

func TestHistory_CachesAndClampsLimit(t *testing.T) {
	turns := &fakeTurns{history: []model.ConversationTurn{
		{ID: 1, UserID: "u1", MessageText: "q"},
		{ID: 2, UserID: "u1", MessageText: "a"},
		{ID: 3, UserID: "u2", MessageText: "other"},
	}}
	cache := newFakeCache()
	svc := newChat(&fakeEmbedder{}, &fakeCompleter{}, &fakeStore{}, turns, cache)

	got, err := svc.History(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 {
		t.Fatalf("unexpected history: %+v", got)
	}
	if _, ok := cache.entries["u1/50"]; !ok {
		t.Fatal("expected default limit 50 to be cached")
	}

	if _, err := svc.History(context.Background(), "u1", 500); err != nil {
		t.Fatal(err)
	}
	if turns.loads != 1 {
		t.Fatalf("second read should be served from cache, loads=%d", turns.loads)
	}

	if _, err := svc.History(context.Background(), " ", 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHistory_CacheErrorFallsBackToStore(t *testing.T) {
	turns := &fakeTurns{history: []model.ConversationTurn{{ID: 1, UserID: "u1"}}}
	cache := newFakeCache()
	cache.getErr = errBoom
	svc := newChat(&fakeEmbedder{}, &fakeCompleter{}, &fakeStore{}, turns, cache)

	got, err := svc.History(context.Background(), "u1", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected store fallback, got %v err=%v", got, err)
	}
}
