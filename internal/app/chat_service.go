package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"increm-coach/internal/ai"
	"increm-coach/internal/model"
	"increm-coach/internal/rag"
)

const maxHistoryLimit = 200

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	CheckConfig() error
}

type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	CheckConfig() error
}

type KnowledgeMatcher interface {
	Match(ctx context.Context, query []float32, threshold float64, count int) ([]model.ScoredChunk, error)
}

// TurnWriter persists one exchange. Implemented by the conversation
// repository (sync) and by the RabbitMQ turn publisher (queue).
type TurnWriter interface {
	Append(ctx context.Context, userID, userText, assistantText string, sources *string) error
}

type TurnReader interface {
	LoadHistory(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, error)
}

type HistoryCache interface {
	Get(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, bool, error)
	Set(ctx context.Context, userID string, limit int, turns []model.ConversationTurn) error
	Invalidate(ctx context.Context, userID string) error
}

type ChatOptions struct {
	MatchThreshold      float64
	MatchCount          int
	HistoryDefaultLimit int
}

type ChatService struct {
	embedder     Embedder
	completer    Completer
	matcher      KnowledgeMatcher
	writer       TurnWriter
	reader       TurnReader
	historyCache HistoryCache
	opts         ChatOptions
}

type ChatInput struct {
	Message string
	UserID  string
}

type ChatResult struct {
	Response      string  `json:"response"`
	Sources       *string `json:"sources"`
	DocumentsUsed int     `json:"documents_used"`
}

// NewChatService wires the chat pipeline. historyCache may be nil.
func NewChatService(
	embedder Embedder,
	completer Completer,
	matcher KnowledgeMatcher,
	writer TurnWriter,
	reader TurnReader,
	historyCache HistoryCache,
	opts ChatOptions,
) *ChatService {
	if opts.MatchCount <= 0 {
		opts.MatchCount = 5
	}
	if opts.HistoryDefaultLimit <= 0 || opts.HistoryDefaultLimit > maxHistoryLimit {
		opts.HistoryDefaultLimit = 50
	}
	return &ChatService{
		embedder:     embedder,
		completer:    completer,
		matcher:      matcher,
		writer:       writer,
		reader:       reader,
		historyCache: historyCache,
		opts:         opts,
	}
}

// Reply runs one chat turn: embed the question, retrieve knowledge, ask the
// model, then record the exchange. Only a completed turn is recorded.
func (s *ChatService) Reply(ctx context.Context, input ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(input.Message)
	userID := strings.TrimSpace(input.UserID)
	if message == "" || userID == "" {
		return nil, ErrMissingChatFields
	}
	if err := s.checkConfig(); err != nil {
		return nil, &TurnError{Stage: StageReceived, Err: err}
	}

	queryEmbedding, err := s.embedder.Embed(ctx, message)
	if err != nil {
		return nil, &TurnError{Stage: StageEmbeddingInFlight, Err: err}
	}

	chunks, err := s.matcher.Match(ctx, queryEmbedding, s.opts.MatchThreshold, s.opts.MatchCount)
	if err != nil {
		log.Printf("%v", fmt.Errorf("%w: %v", ErrSearch, err))
		chunks = nil
	}

	messages := rag.BuildMessages(chunks, message)
	sources := rag.SourcesLabel(chunks)

	answer, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return nil, &TurnError{Stage: StageCompletionInFlight, Err: err}
	}

	s.persist(context.WithoutCancel(ctx), userID, message, answer, sources)

	return &ChatResult{
		Response:      answer,
		Sources:       sources,
		DocumentsUsed: len(chunks),
	}, nil
}

// History returns the user's most recent turns, oldest first.
func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.opts.HistoryDefaultLimit
	}

	if s.historyCache != nil {
		turns, ok, err := s.historyCache.Get(ctx, userID, limit)
		if err != nil {
			log.Printf("get history cache failed: %v", err)
		} else if ok {
			return turns, nil
		}
	}

	turns, err := s.reader.LoadHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []model.ConversationTurn{}
	}

	if s.historyCache != nil {
		if err := s.historyCache.Set(ctx, userID, limit, turns); err != nil {
			log.Printf("set history cache failed: %v", err)
		}
	}
	return turns, nil
}

func (s *ChatService) checkConfig() error {
	if err := s.embedder.CheckConfig(); err != nil {
		return err
	}
	return s.completer.CheckConfig()
}

// persist logs and drops storage failures.
func (s *ChatService) persist(ctx context.Context, userID, userText, answer string, sources *string) {
	if err := s.writer.Append(ctx, userID, userText, answer, sources); err != nil {
		log.Printf("%v", fmt.Errorf("%w: %v", ErrPersistence, err))
		return
	}
	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, userID); err != nil {
			log.Printf("invalidate history cache failed: %v", err)
		}
	}
}
