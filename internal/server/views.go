package server

import (
	"time"

	"github.com/raphaelgruber/chorus/internal/models"
)

// API representations use plain string ids instead of record ids.

// MessageView is a message in API responses.
type MessageView struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	AIRead    bool      `json:"ai_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ParticipantView is a room participant in API responses.
type ParticipantView struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// AgentView is a persona in API responses.
type AgentView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Personality string  `json:"personality"`
	Voice       *string `json:"voice,omitempty"`
}

// TemplateView is a template in API responses.
type TemplateView struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    *string        `json:"description,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Type           string         `json:"type"`
	SchemaName     *string        `json:"schema_name,omitempty"`
	Schema         map[string]any `json:"schema,omitempty"`
	Threshold      float64        `json:"threshold"`
	ExamplePrompt  *string        `json:"example_prompt,omitempty"`
	Markup         string         `json:"markup,omitempty"`
	FallbackMarkup *string        `json:"fallback_markup,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// GenerationView is a generation in API responses.
type GenerationView struct {
	ID           string              `json:"id"`
	RoomID       string              `json:"room_id"`
	Type         string              `json:"type"`
	RenderMethod models.RenderMethod `json:"render_method"`
	TemplateID   *string             `json:"template_id,omitempty"`
	Props        map[string]any      `json:"props,omitempty"`
	RawMarkup    *string             `json:"raw_markup,omitempty"`
	Confidence   float64             `json:"confidence"`
	Summary      string              `json:"summary"`
	Slug         *string             `json:"slug,omitempty"`
	CreatedBy    string              `json:"created_by"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func messageView(m models.Message) MessageView {
	return MessageView{
		ID:        m.MessageIDString(),
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		AIRead:    m.AIRead,
		CreatedAt: m.CreatedAt,
	}
}

func participantView(p models.Participant) ParticipantView {
	return ParticipantView{RoomID: p.RoomID, UserID: p.UserID, JoinedAt: p.JoinedAt}
}

func agentView(a models.Agent) AgentView {
	return AgentView{ID: a.AgentIDString(), Name: a.Name, Personality: a.Personality, Voice: a.Voice}
}

func templateView(t models.Template) TemplateView {
	return TemplateView{
		ID:             t.TemplateIDString(),
		Name:           t.Name,
		Description:    t.Description,
		Tags:           t.Tags,
		Type:           t.Type,
		SchemaName:     t.SchemaName,
		Schema:         t.Schema,
		Threshold:      t.EffectiveThreshold(),
		ExamplePrompt:  t.ExamplePrompt,
		Markup:         t.Markup,
		FallbackMarkup: t.FallbackMarkup,
		UpdatedAt:      t.UpdatedAt,
	}
}

func generationView(g models.Generation) GenerationView {
	return GenerationView{
		ID:           g.GenerationIDString(),
		RoomID:       g.RoomID,
		Type:         g.Type,
		RenderMethod: g.RenderMethod,
		TemplateID:   g.TemplateID,
		Props:        g.Props,
		RawMarkup:    g.RawMarkup,
		Confidence:   g.Confidence,
		Summary:      g.Summary,
		Slug:         g.Slug,
		CreatedBy:    g.CreatedBy,
		Metadata:     g.Metadata,
		CreatedAt:    g.CreatedAt,
	}
}

func mapViews[T, V any](items []T, view func(T) V) []V {
	out := make([]V, len(items))
	for i, it := range items {
		out[i] = view(it)
	}
	return out
}
