// Package models defines data structures for the chorus chat orchestrator.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message is a single chat message in a room.
// Messages are append-only; AIRead is the only field mutated after insert.
type Message struct {
	ID        surrealmodels.RecordID `json:"id"`
	RoomID    string                 `json:"room_id"`
	UserID    string                 `json:"user_id"` // Author: a human user id or an agent id
	Content   string                 `json:"content"`
	AIRead    bool                   `json:"ai_read"`
	CreatedAt time.Time              `json:"created_at"`
}

// Participant records a user's presence in a room.
type Participant struct {
	ID       surrealmodels.RecordID `json:"id"`
	RoomID   string                 `json:"room_id"`
	UserID   string                 `json:"user_id"`
	JoinedAt time.Time              `json:"joined_at"`
}

// MessageIDString returns the string id of a message, or "" for an unset id.
func (m Message) MessageIDString() string {
	id, err := RecordIDString(m.ID)
	if err != nil {
		return ""
	}
	return id
}
