package models

import (
	"errors"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RenderMethod says how a generation is displayed.
type RenderMethod string

const (
	// RenderTemplate generations carry validated props for a known template.
	RenderTemplate RenderMethod = "template"
	// RenderFallbackIframe generations carry a complete HTML document.
	RenderFallbackIframe RenderMethod = "fallback_iframe"
)

// Generation types that are not template visualization types.
const (
	GenerationTypeHTML  = "html"
	GenerationTypeError = "error"
)

// ErrPayloadInvariant is returned when a generation does not carry exactly one payload.
var ErrPayloadInvariant = errors.New("generation must carry exactly one of props or raw markup")

// Generation is a persisted visualization artifact tied to a room canvas.
type Generation struct {
	ID           surrealmodels.RecordID `json:"id"`
	RoomID       string                 `json:"room_id"`
	Type         string                 `json:"type"`
	RenderMethod RenderMethod           `json:"render_method"`
	TemplateID   *string                `json:"template_id,omitempty"`
	Props        map[string]any         `json:"props,omitempty"`      // Set only for RenderTemplate
	RawMarkup    *string                `json:"raw_markup,omitempty"` // Set only for RenderFallbackIframe
	Confidence   float64                `json:"confidence"`
	Summary      string                 `json:"summary"`
	Slug         *string                `json:"slug,omitempty"`
	CreatedBy    string                 `json:"created_by"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// GenerationIDString returns the string id of the generation, or "" for an unset id.
func (g Generation) GenerationIDString() string {
	id, err := RecordIDString(g.ID)
	if err != nil {
		return ""
	}
	return id
}

// GenerationInput is the input structure for inserting generations.
type GenerationInput struct {
	RoomID       string
	Type         string
	RenderMethod RenderMethod
	TemplateID   *string
	Props        map[string]any
	RawMarkup    *string
	Confidence   float64
	Summary      string
	CreatedBy    string
	Metadata     map[string]any
}

// Validate enforces the exclusive payload invariant.
func (in GenerationInput) Validate() error {
	if in.RoomID == "" {
		return errors.New("generation room id is required")
	}
	switch in.RenderMethod {
	case RenderTemplate:
		if in.Props == nil || in.RawMarkup != nil {
			return ErrPayloadInvariant
		}
	case RenderFallbackIframe:
		if in.RawMarkup == nil || *in.RawMarkup == "" || in.Props != nil {
			return ErrPayloadInvariant
		}
	default:
		return errors.New("unknown render method: " + string(in.RenderMethod))
	}
	return nil
}
