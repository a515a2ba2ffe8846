package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// normalizer is implemented by props that canonicalize values before validation.
type normalizer interface {
	normalize()
}

func (p *SchedulerProps) normalize() {
	for i := range p.Events {
		p.Events[i].Day = strings.ToLower(strings.TrimSpace(p.Events[i].Day))
		p.Events[i].Start = strings.TrimSpace(p.Events[i].Start)
		p.Events[i].End = strings.TrimSpace(p.Events[i].End)
	}
}

func (p *ChartProps) normalize() {
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	if p.Kind == "" {
		p.Kind = "bar"
	}
}

// Registry validates props against the known visualization types.
type Registry struct {
	validate *validator.Validate
}

// NewRegistry creates a registry with the struct-level rules registered.
func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateTableRows, TableProps{})
	return &Registry{validate: v}
}

func validateTableRows(sl validator.StructLevel) {
	t := sl.Current().Interface().(TableProps)
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			sl.ReportError(t.Rows, fmt.Sprintf("Rows[%d]", i), fmt.Sprintf("Rows[%d]", i), "row_len", fmt.Sprint(len(t.Columns)))
		}
	}
}

// Validate decodes raw into the props struct of vizType, validates it and returns
// the canonical props map. Failures are *ValidationError.
func (r *Registry) Validate(vizType string, raw map[string]any) (map[string]any, error) {
	props, ok := newProps(vizType)
	if !ok {
		return nil, &ValidationError{Type: vizType, Err: fmt.Errorf("unknown visualization type %q", vizType)}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &ValidationError{Type: vizType, Err: fmt.Errorf("encode props: %w", err)}
	}
	if err := json.Unmarshal(data, props); err != nil {
		return nil, &ValidationError{Type: vizType, Err: fmt.Errorf("decode props: %w", err)}
	}
	if n, ok := props.(normalizer); ok {
		n.normalize()
	}

	if err := r.validate.Struct(props); err != nil {
		return nil, newValidationError(vizType, err)
	}

	return toMap(props)
}

// toMap re-encodes a props struct as a generic map.
func toMap(props any) (map[string]any, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("encode props: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode props: %w", err)
	}
	return out, nil
}
