package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Causes for skipping the template tier.
var (
	// ErrNoTemplate means no registered template could be ranked or loaded.
	ErrNoTemplate = errors.New("no usable template")
	// ErrBelowThreshold means the best template scored under its threshold.
	ErrBelowThreshold = errors.New("template confidence below threshold")
	// ErrUnresolvableTemplate is logged when type resolution falls back to the default type.
	ErrUnresolvableTemplate = errors.New("template type unresolvable")
)

// ValidationError reports props that do not satisfy a visualization schema.
type ValidationError struct {
	Type   string
	Fields []FieldError
	Err    error
}

// FieldError is one failed constraint.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid %s props: %v", e.Type, e.Err)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Rule
		if f.Param != "" {
			parts[i] += "=" + f.Param
		}
	}
	return fmt.Sprintf("invalid %s props: %s", e.Type, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// newValidationError converts validator output into a ValidationError.
func newValidationError(vizType string, err error) *ValidationError {
	ve := &ValidationError{Type: vizType, Err: err}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			ve.Fields = append(ve.Fields, FieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
		}
	}
	return ve
}
