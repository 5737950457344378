package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingChatFields = errors.New("message and user_id required")
	ErrSearch            = errors.New("knowledge search failed")
	ErrPersistence       = errors.New("conversation persistence failed")
	ErrIngestFailed      = errors.New("no knowledge chunk could be stored")
)

// TurnStage is where a chat turn currently is.
type TurnStage string

const (
	StageReceived           TurnStage = "received"
	StageEmbeddingInFlight  TurnStage = "embedding_in_flight"
	StageSearchInFlight     TurnStage = "search_in_flight"
	StagePromptBuilt        TurnStage = "prompt_built"
	StageCompletionInFlight TurnStage = "completion_in_flight"
	StagePersistInFlight    TurnStage = "persist_in_flight"
	StageCompleted          TurnStage = "completed"
)

// TurnError reports the stage at which a chat turn failed.
type TurnError struct {
	Stage TurnStage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("chat turn failed at %s: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
