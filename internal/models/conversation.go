package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ConversationRecord is a persisted conversation owned by one user.
type ConversationRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	UserID    string                 `json:"user_id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Conversation is the directory's view of a persisted thread.
// The session store only ever keeps its ID.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View converts the persisted record into a listing entry.
func (r ConversationRecord) View() (Conversation, error) {
	id, err := RecordIDString(r.ID)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{ID: id, Title: r.Title, UpdatedAt: r.UpdatedAt}, nil
}

// ConversationState tracks whether a conversation exists for the current exchange.
type ConversationState int

const (
	NoConversation ConversationState = iota
	ConversationPendingCreation
	ConversationReady
)

func (s ConversationState) String() string {
	switch s {
	case ConversationPendingCreation:
		return "pending"
	case ConversationReady:
		return "ready"
	default:
		return "none"
	}
}
