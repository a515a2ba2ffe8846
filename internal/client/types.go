package client

import "time"

// Types matching the server's JSON responses.

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	AIRead    bool      `json:"ai_read"`
	CreatedAt time.Time `json:"created_at"`
}

type Participant struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type Agent struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Personality string  `json:"personality"`
	Voice       *string `json:"voice,omitempty"`
}

type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Type        string   `json:"type"`
	SchemaName  *string  `json:"schema_name,omitempty"`
	Threshold   float64  `json:"threshold"`
	Markup      string   `json:"markup,omitempty"`
}

type Generation struct {
	ID           string         `json:"id"`
	RoomID       string         `json:"room_id"`
	Type         string         `json:"type"`
	RenderMethod string         `json:"render_method"`
	TemplateID   *string        `json:"template_id,omitempty"`
	Props        map[string]any `json:"props,omitempty"`
	RawMarkup    *string        `json:"raw_markup,omitempty"`
	Confidence   float64        `json:"confidence"`
	Summary      string         `json:"summary"`
	CreatedBy    string         `json:"created_by"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Task struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	RoomID      string     `json:"room_id"`
	Subject     string     `json:"subject"`
	Status      string     `json:"status"`
	Outcome     string     `json:"outcome,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
