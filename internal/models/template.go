package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DefaultTemplateThreshold is used when a template does not declare its own threshold.
const DefaultTemplateThreshold = 0.75

// Template describes a visualization that can be rendered from structured props.
type Template struct {
	ID surrealmodels.RecordID `json:"id"`

	// Identity
	Name        string   `json:"name"`                  // "Bar Chart", "Weekly Schedule", "Project Timeline"
	Description *string  `json:"description,omitempty"` // Used by the ranking prompt
	Tags        []string `json:"tags,omitempty"`

	// Typing
	Type       string         `json:"type"`                  // Semantic type tag, e.g. "chart"
	SchemaName *string        `json:"schema_name,omitempty"` // Declared schema name, e.g. "ChartSchema"
	Schema     map[string]any `json:"schema,omitempty"`      // Structured-schema descriptor
	Threshold  float64        `json:"threshold"`

	// Examples
	ExamplePrompt *string        `json:"example_prompt,omitempty"`
	ExampleProps  map[string]any `json:"example_props,omitempty"`

	// Rendering
	Markup         string  `json:"markup,omitempty"`          // html/template pattern; empty uses the type default
	FallbackMarkup *string `json:"fallback_markup,omitempty"` // Static markup when rendering fails

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateIDString returns the string id of the template, or "" for an unset id.
func (t Template) TemplateIDString() string {
	id, err := RecordIDString(t.ID)
	if err != nil {
		return ""
	}
	return id
}

// EffectiveThreshold returns the template threshold, falling back to the default.
func (t Template) EffectiveThreshold() float64 {
	if t.Threshold <= 0 {
		return DefaultTemplateThreshold
	}
	return t.Threshold
}

// TemplateInput is the input structure for creating or replacing templates.
type TemplateInput struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Description    *string        `json:"description,omitempty" yaml:"description,omitempty"`
	Tags           []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Type           string         `json:"type" yaml:"type"`
	SchemaName     *string        `json:"schema_name,omitempty" yaml:"schema_name,omitempty"`
	Schema         map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
	Threshold      float64        `json:"threshold" yaml:"threshold"`
	ExamplePrompt  *string        `json:"example_prompt,omitempty" yaml:"example_prompt,omitempty"`
	ExampleProps   map[string]any `json:"example_props,omitempty" yaml:"example_props,omitempty"`
	Markup         string         `json:"markup,omitempty" yaml:"markup,omitempty"`
	FallbackMarkup *string        `json:"fallback_markup,omitempty" yaml:"fallback_markup,omitempty"`
}

// DefaultTemplates returns the set of built-in visualization templates.
func DefaultTemplates() []TemplateInput {
	return []TemplateInput{
		{
			ID:            "bar-chart",
			Name:          "Bar Chart",
			Description:   ptr("Compare numeric values across categories"),
			Tags:          []string{"chart", "graph", "compare", "numbers"},
			Type:          "chart",
			SchemaName:    ptr("ChartSchema"),
			Threshold:     0.7,
			ExamplePrompt: ptr("chart how many pizzas each of us ate this week"),
		},
		{
			ID:            "weekly-schedule",
			Name:          "Weekly Schedule",
			Description:   ptr("Lay out events or shifts on a calendar"),
			Tags:          []string{"schedule", "calendar", "plan", "meeting"},
			Type:          "scheduler",
			SchemaName:    ptr("SchedulerSchema"),
			Threshold:     0.75,
			ExamplePrompt: ptr("make a schedule for our study sessions next week"),
		},
		{
			ID:            "project-timeline",
			Name:          "Project Timeline",
			Description:   ptr("Show milestones or historical events in order"),
			Tags:          []string{"timeline", "history", "milestones", "roadmap"},
			Type:          "timeline",
			SchemaName:    ptr("TimelineSchema"),
			Threshold:     0.75,
			ExamplePrompt: ptr("build a timeline of the space race"),
		},
		{
			ID:          "comparison-table",
			Name:        "Comparison Table",
			Description: ptr("Tabulate options side by side"),
			Tags:        []string{"table", "compare", "options"},
			Type:        "table",
			SchemaName:  ptr("TableSchema"),
			Threshold:   0.8,
		},
		{
			ID:          "shared-checklist",
			Name:        "Shared Checklist",
			Description: ptr("Track a list of todo items for the room"),
			Tags:        []string{"todo", "checklist", "tasks"},
			Type:        "checklist",
			SchemaName:  ptr("ChecklistSchema"),
			Threshold:   0.8,
		},
	}
}

func ptr(s string) *string {
	return &s
}
