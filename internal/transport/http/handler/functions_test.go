package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"increm-coach/internal/ai"
	"increm-coach/internal/app"
	"increm-coach/internal/transport/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEmbeddings struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbeddings) Generate(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeChat struct {
	calls  int
	input  app.ChatInput
	result *app.ChatResult
	err    error
}

func (f *fakeChat) Reply(ctx context.Context, input app.ChatInput) (*app.ChatResult, error) {
	f.calls++
	f.input = input
	return f.result, f.err
}

func doJSON(t *testing.T, h gin.HandlerFunc, body string, pre ...gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	router := gin.New()
	router.POST("/", append(pre, h)...)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %q", rec.Body.String())
	}
	return rec, out
}

func TestGenerateEmbeddings(t *testing.T) {
	emb := &fakeEmbeddings{vec: []float32{0.5, 0.25}}
	h := NewFunctionsHandler(emb, &fakeChat{}, false)

	rec, out := doJSON(t, h.GenerateEmbeddings, `{"text":"deadlift"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", rec.Code, out)
	}
	vec, ok := out["embedding"].([]interface{})
	if !ok || len(vec) != 2 || vec[0].(float64) != 0.5 {
		t.Fatalf("unexpected embedding: %v", out)
	}
}

func TestGenerateEmbeddings_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"missing text", `{}`, nil, http.StatusBadRequest, msgTextRequired},
		{"bad json", `{`, nil, http.StatusBadRequest, msgTextRequired},
		{"unconfigured", `{"text":"x"}`, ai.ErrConfiguration, http.StatusInternalServerError, "embedding service is not configured"},
		{"upstream", `{"text":"x"}`, fmt.Errorf("%w: status 500", ai.ErrEmbeddingService), http.StatusBadGateway, msgEmbeddingFailed},
		{"timeout", `{"text":"x"}`, fmt.Errorf("%w: %w", ai.ErrEmbeddingService, ai.ErrTimeout), http.StatusGatewayTimeout, msgEmbeddingFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewFunctionsHandler(&fakeEmbeddings{err: tc.err}, &fakeChat{}, false)
			rec, out := doJSON(t, h.GenerateEmbeddings, tc.body)
			if rec.Code != tc.status || out["error"] != tc.msg {
				t.Fatalf("got %d %v, want %d %q", rec.Code, out, tc.status, tc.msg)
			}
		})
	}
}

func TestChatCompletion(t *testing.T) {
	sources := "Bench Press Form"
	chat := &fakeChat{result: &app.ChatResult{Response: "Keep elbows at 45 degrees.", Sources: &sources, DocumentsUsed: 2}}
	h := NewFunctionsHandler(&fakeEmbeddings{}, chat, false)

	rec, out := doJSON(t, h.ChatCompletion, `{"message":"bench tips?","user_id":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", rec.Code, out)
	}
	if out["response"] != "Keep elbows at 45 degrees." || out["sources"] != sources || out["documents_used"].(float64) != 2 {
		t.Fatalf("unexpected body: %v", out)
	}
	if chat.input.UserID != "u1" || chat.input.Message != "bench tips?" {
		t.Fatalf("unexpected input: %+v", chat.input)
	}
}

func TestChatCompletion_NullSources(t *testing.T) {
	chat := &fakeChat{result: &app.ChatResult{Response: "General advice."}}
	h := NewFunctionsHandler(&fakeEmbeddings{}, chat, false)

	_, out := doJSON(t, h.ChatCompletion, `{"message":"hi","user_id":"u1"}`)
	if v, ok := out["sources"]; !ok || v != nil {
		t.Fatalf("expected sources: null, got %v", out)
	}
}

func TestChatCompletion_MissingFields(t *testing.T) {
	for _, body := range []string{`{"message":"hi"}`, `{"user_id":"u1"}`, `{}`, `nope`} {
		chat := &fakeChat{}
		h := NewFunctionsHandler(&fakeEmbeddings{}, chat, false)
		rec, out := doJSON(t, h.ChatCompletion, body)
		if rec.Code != http.StatusBadRequest || out["error"] != msgChatFields {
			t.Fatalf("%s: got %d %v", body, rec.Code, out)
		}
		if chat.calls != 0 {
			t.Fatalf("%s: chat service must not be invoked", body)
		}
	}
}

func TestChatCompletion_Failures(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&app.TurnError{Stage: app.StageCompletionInFlight, Err: ai.ErrCompletionService}, http.StatusBadGateway},
		{&app.TurnError{Stage: app.StageEmbeddingInFlight, Err: fmt.Errorf("%w: %w", ai.ErrEmbeddingService, ai.ErrTimeout)}, http.StatusGatewayTimeout},
		{&app.TurnError{Stage: app.StageReceived, Err: ai.ErrConfiguration}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewFunctionsHandler(&fakeEmbeddings{}, &fakeChat{err: tc.err}, false)
		rec, out := doJSON(t, h.ChatCompletion, `{"message":"hi","user_id":"u1"}`)
		if rec.Code != tc.status || out["error"] != msgChatFailed {
			t.Fatalf("%v: got %d %v", tc.err, rec.Code, out)
		}
	}
}

func TestChatCompletion_TokenUserMustMatch(t *testing.T) {
	chat := &fakeChat{result: &app.ChatResult{Response: "ok"}}
	h := NewFunctionsHandler(&fakeEmbeddings{}, chat, true)
	asUser := func(id string) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set(middleware.ContextUserIDKey, id) }
	}

	rec, _ := doJSON(t, h.ChatCompletion, `{"message":"hi","user_id":"u1"}`, asUser("u2"))
	if rec.Code != http.StatusForbidden || chat.calls != 0 {
		t.Fatalf("expected 403 without a call, got %d calls=%d", rec.Code, chat.calls)
	}

	rec, _ = doJSON(t, h.ChatCompletion, `{"message":"hi","user_id":"u1"}`, asUser("u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for matching user, got %d", rec.Code)
	}
}
