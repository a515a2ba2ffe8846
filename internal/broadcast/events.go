// Package broadcast delivers named room events to viewers: a Pusher-compatible
// push backbone, local WebSocket subscribers and an optional Kafka mirror.
package broadcast

import (
	"context"
	"time"
)

// Event is a named event published on a room channel.
type Event string

// Events published by chorus.
const (
	EventNewMessage    Event = "new-message"
	EventUserJoined    Event = "user-joined"
	EventUserLeft      Event = "user-left"
	EventNewGeneration Event = "new-generation"
	EventNewStatus     Event = "new-status"
)

// Status types carried by new-status events.
const (
	StatusGenerating = "generating"
	StatusError      = "error"
)

// Channel returns the channel name for a room.
func Channel(roomID string) string {
	return "room-" + roomID
}

// NewMessage is the new-message payload.
type NewMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
}

// UserJoined is the user-joined payload.
type UserJoined struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// UserLeft is the user-left payload.
type UserLeft struct {
	UserID string `json:"user_id"`
}

// NewGeneration is the new-generation payload.
type NewGeneration struct {
	GenerationID string    `json:"generation_id"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
	Slug         *string   `json:"slug,omitempty"`
}

// NewStatus is the new-status payload.
type NewStatus struct {
	StatusType string `json:"status_type"`
	Message    string `json:"message,omitempty"`
}

// Envelope is the frame sent to WebSocket subscribers and the Kafka mirror.
type Envelope struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data"`
}

// Publisher delivers one event to one channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, event Event, data any) error
}
