package pipeline

// Known visualization types.
const (
	TypeChart     = "chart"
	TypeScheduler = "scheduler"
	TypeTimeline  = "timeline"
	TypeTable     = "table"
	TypeChecklist = "checklist"
)

// DefaultType is used when a template's type cannot be resolved.
const DefaultType = TypeChart

// KnownTypes lists every visualization type with a validator and markup pattern.
var KnownTypes = []string{TypeChart, TypeScheduler, TypeTimeline, TypeTable, TypeChecklist}

// ChartProps are the props of a chart.
type ChartProps struct {
	Title  string    `json:"title" validate:"required"`
	Kind   string    `json:"kind" validate:"omitempty,oneof=bar line pie"`
	Labels []string  `json:"labels" validate:"required,min=1,max=50,dive,required"`
	Values []float64 `json:"values" validate:"required,eqfield=Labels"`
	Unit   string    `json:"unit"`
}

// SchedulerProps are the props of a weekly schedule.
type SchedulerProps struct {
	Title  string           `json:"title" validate:"required"`
	Events []SchedulerEvent `json:"events" validate:"required,min=1,max=100,dive"`
}

// SchedulerEvent is one scheduled slot.
type SchedulerEvent struct {
	Title    string `json:"title" validate:"required"`
	Day      string `json:"day" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Start    string `json:"start" validate:"required,datetime=15:04"`
	End      string `json:"end" validate:"omitempty,datetime=15:04"`
	Location string `json:"location"`
}

// TimelineProps are the props of a timeline.
type TimelineProps struct {
	Title  string          `json:"title" validate:"required"`
	Events []TimelineEvent `json:"events" validate:"required,min=1,max=100,dive"`
}

// TimelineEvent is one milestone.
type TimelineEvent struct {
	Date        string `json:"date" validate:"required"`
	Label       string `json:"label" validate:"required"`
	Description string `json:"description"`
}

// TableProps are the props of a comparison table. Every row has one cell per column.
type TableProps struct {
	Title   string     `json:"title" validate:"required"`
	Columns []string   `json:"columns" validate:"required,min=1,max=20,dive,required"`
	Rows    [][]string `json:"rows" validate:"required,min=1,max=200"`
}

// ChecklistProps are the props of a shared checklist.
type ChecklistProps struct {
	Title string          `json:"title" validate:"required"`
	Items []ChecklistItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// ChecklistItem is one checklist entry.
type ChecklistItem struct {
	Text     string `json:"text" validate:"required"`
	Done     bool   `json:"done"`
	Assignee string `json:"assignee"`
}

func str() map[string]any     { return map[string]any{"type": "string"} }
func num() map[string]any     { return map[string]any{"type": "number"} }
func boolean() map[string]any { return map[string]any{"type": "boolean"} }

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items, "minItems": 1}
}

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// schemas are the JSON schemas sent with extraction calls.
var schemas = map[string]map[string]any{
	TypeChart: object([]string{"title", "labels", "values"}, map[string]any{
		"title":  str(),
		"kind":   map[string]any{"type": "string", "enum": []string{"bar", "line", "pie"}},
		"labels": arrayOf(str()),
		"values": arrayOf(num()),
		"unit":   str(),
	}),
	TypeScheduler: object([]string{"title", "events"}, map[string]any{
		"title": str(),
		"events": arrayOf(object([]string{"title", "day", "start"}, map[string]any{
			"title":    str(),
			"day":      map[string]any{"type": "string", "enum": []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}},
			"start":    map[string]any{"type": "string", "description": "24h time HH:MM"},
			"end":      map[string]any{"type": "string", "description": "24h time HH:MM"},
			"location": str(),
		})),
	}),
	TypeTimeline: object([]string{"title", "events"}, map[string]any{
		"title": str(),
		"events": arrayOf(object([]string{"date", "label"}, map[string]any{
			"date":        str(),
			"label":       str(),
			"description": str(),
		})),
	}),
	TypeTable: object([]string{"title", "columns", "rows"}, map[string]any{
		"title":   str(),
		"columns": arrayOf(str()),
		"rows":    arrayOf(arrayOf(str())),
	}),
	TypeChecklist: object([]string{"title", "items"}, map[string]any{
		"title": str(),
		"items": arrayOf(object([]string{"text"}, map[string]any{
			"text":     str(),
			"done":     boolean(),
			"assignee": str(),
		})),
	}),
}

// Schema returns the JSON schema of a known type.
func Schema(vizType string) (map[string]any, bool) {
	s, ok := schemas[vizType]
	return s, ok
}

// newProps returns a pointer to an empty props struct for vizType.
func newProps(vizType string) (any, bool) {
	switch vizType {
	case TypeChart:
		return &ChartProps{}, true
	case TypeScheduler:
		return &SchedulerProps{}, true
	case TypeTimeline:
		return &TimelineProps{}, true
	case TypeTable:
		return &TableProps{}, true
	case TypeChecklist:
		return &ChecklistProps{}, true
	}
	return nil, false
}
