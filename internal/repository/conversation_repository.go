package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"increm-coach/internal/model"
)

const (
	DefaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Append stores the user turn and the assistant turn of one exchange in a
// single transaction.
func (r *ConversationRepository) Append(ctx context.Context, userID, userText, assistantText string, sources *string) error {
	return r.AppendPair(ctx, model.TurnPair{
		UserID:        userID,
		UserText:      userText,
		AssistantText: assistantText,
		Sources:       sources,
		CreatedAt:     time.Now(),
	})
}

func (r *ConversationRepository) AppendPair(ctx context.Context, pair model.TurnPair) error {
	if pair.UserID == "" {
		return fmt.Errorf("append conversation turns failed: empty user id")
	}
	turns := pair.Turns()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range turns {
			if err := tx.Create(&turns[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append conversation turns failed: %w", err)
	}
	return nil
}

// LoadHistory returns the latest turns of the user, oldest first.
func (r *ConversationRepository) LoadHistory(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, error) {
	limit = NormalizeHistoryLimit(limit)

	var turns []model.ConversationTurn
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load conversation history failed: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func NormalizeHistoryLimit(limit int) int {
	if limit <= 0 || limit > maxHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}
