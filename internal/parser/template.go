// Package parser reads visualization template definitions written as
// Markdown with YAML frontmatter.
//
// The frontmatter carries the template fields (id, name, type, tags,
// threshold, schema_name, description, example_prompt). The markup pattern is
// the first ```html fenced block of the body, or the whole body when there is
// no fence. A missing name falls back to the first h1.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/chorus/internal/models"
)

// ErrNoName is returned when neither the frontmatter nor a heading names the template.
var ErrNoName = errors.New("template has no name")

var (
	h1Regex    = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fenceRegex = regexp.MustCompile("(?s)```html[ \t]*\n(.*?)\n```")
)

// TemplateDoc is a parsed template definition file.
type TemplateDoc struct {
	Frontmatter map[string]any
	Body        string // Everything after the frontmatter
}

// ParseDocument splits content into frontmatter and body.
func ParseDocument(content string) (*TemplateDoc, error) {
	doc := &TemplateDoc{Frontmatter: make(map[string]any)}
	content = strings.ReplaceAll(content, "\r\n", "\n")

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx < 0 {
			return nil, errors.New("unterminated frontmatter")
		}
		frontmatterYAML := content[4 : 4+endIdx]
		remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")

		if err := yaml.Unmarshal([]byte(frontmatterYAML), &doc.Frontmatter); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		if doc.Frontmatter == nil {
			doc.Frontmatter = make(map[string]any)
		}
	}

	doc.Body = remaining
	return doc, nil
}

// ParseTemplate reads a template definition file into a TemplateInput.
func ParseTemplate(content string) (models.TemplateInput, error) {
	doc, err := ParseDocument(content)
	if err != nil {
		return models.TemplateInput{}, err
	}

	var in models.TemplateInput
	if len(doc.Frontmatter) > 0 {
		// Round-trip through YAML so the frontmatter uses the same field names as seed files.
		raw, err := yaml.Marshal(doc.Frontmatter)
		if err != nil {
			return models.TemplateInput{}, fmt.Errorf("encode frontmatter: %w", err)
		}
		if err := yaml.Unmarshal(raw, &in); err != nil {
			return models.TemplateInput{}, fmt.Errorf("decode frontmatter: %w", err)
		}
	}

	if in.Name == "" {
		in.Name = doc.Title()
	}
	if in.Name == "" {
		return models.TemplateInput{}, ErrNoName
	}
	if in.ID == "" {
		in.ID = models.Slugify(in.Name)
	}
	if in.Markup == "" {
		in.Markup = doc.Markup()
	}
	return in, nil
}

// Title returns the frontmatter title or name, or the first h1 of the body.
func (d *TemplateDoc) Title() string {
	for _, key := range []string{"title", "name"} {
		if v := d.GetFrontmatterString(key); v != "" {
			return v
		}
	}
	if match := h1Regex.FindStringSubmatch(d.Body); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// Markup returns the first html fenced block, or the trimmed body without its h1.
func (d *TemplateDoc) Markup() string {
	if match := fenceRegex.FindStringSubmatch(d.Body); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	body := h1Regex.ReplaceAllString(d.Body, "")
	return strings.TrimSpace(body)
}

// GetFrontmatterString extracts a string from frontmatter.
func (d *TemplateDoc) GetFrontmatterString(key string) string {
	if v, ok := d.Frontmatter[key].(string); ok {
		return v
	}
	return ""
}
