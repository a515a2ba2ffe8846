package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// Prompt is a reusable text/template prompt.
type Prompt struct {
	tmpl prompts.PromptTemplate
}

// NewPrompt builds a prompt from Go template text. vars lists the variables Format expects.
func NewPrompt(text string, vars ...string) Prompt {
	return Prompt{tmpl: prompts.PromptTemplate{
		Template:       text,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
	}}
}

// Format renders the prompt with values.
func (p Prompt) Format(values map[string]any) (string, error) {
	out, err := p.tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return out, nil
}
