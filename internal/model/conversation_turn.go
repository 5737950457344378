package model

import "time"

type ConversationTurn struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index:idx_turn_user_created,priority:1" json:"user_id"`
	MessageText string    `gorm:"type:text;not null" json:"message_text"`
	IsFromUser  bool      `gorm:"not null" json:"is_from_user"`
	SourcesUsed *string   `gorm:"type:text" json:"sources_used"`
	CreatedAt   time.Time `gorm:"index:idx_turn_user_created,priority:2" json:"created_at"`
}

// TurnPair is one chat exchange as it travels to storage.
type TurnPair struct {
	UserID        string    `json:"user_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Sources       *string   `json:"sources"`
	CreatedAt     time.Time `json:"created_at"`
}

// Turns expands the pair into the user turn followed by the assistant turn.
func (p TurnPair) Turns() []ConversationTurn {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []ConversationTurn{
		{
			UserID:      p.UserID,
			MessageText: p.UserText,
			IsFromUser:  true,
			SourcesUsed: p.Sources,
			CreatedAt:   createdAt,
		},
		{
			UserID:      p.UserID,
			MessageText: p.AssistantText,
			IsFromUser:  false,
			SourcesUsed: p.Sources,
			CreatedAt:   createdAt,
		},
	}
}
