// Package pipeline turns a visualization request into exactly one stored generation,
// trying a matched template first, then a generated HTML document, then a static error card.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

// Store is the persistence the pipeline needs.
type Store interface {
	QueryTemplates(ctx context.Context) ([]models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	InsertGeneration(ctx context.Context, in models.GenerationInput) (*models.Generation, error)
}

// Generator is the generative service the pipeline needs.
type Generator interface {
	GenerateText(ctx context.Context, req llm.TextRequest) (string, error)
	GenerateObject(ctx context.Context, req llm.ObjectRequest, out any) error
}

// Tier names the stage that produced a generation.
type Tier string

const (
	TierTemplate Tier = "template"
	TierHTML     Tier = "html"
	TierError    Tier = "error"
)

// Request is one visualization request.
type Request struct {
	RoomID      string
	Prompt      string  // The triggering message
	History     string  // Recent messages as "user: content" lines
	PriorMarkup string  // Summary or markup of the room's last generation
	CreatedBy   string  // Author recorded on the generation
	Confidence  float64 // Intent confidence that triggered the run
}

// Result is the outcome of Run.
type Result struct {
	Generation *models.Generation
	Tier       Tier
	Skipped    []error // Why earlier tiers were abandoned, in order
}

// Pipeline runs the generation tiers.
type Pipeline struct {
	store    Store
	gen      Generator
	registry *Registry
	renderer *Renderer
	logger   *slog.Logger
}

// New creates a pipeline.
func New(store Store, gen Generator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		gen:      gen,
		registry: NewRegistry(),
		renderer: NewRenderer(),
		logger:   logger.With("component", "pipeline"),
	}
}

// Renderer returns the renderer used for the template tier.
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// Run produces and stores exactly one generation for req. An error is returned only
// when even the error card could not be stored.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	log := p.logger.With("room_id", req.RoomID)

	g, err := p.guard(func() (*models.Generation, error) { return p.templateTier(ctx, req) })
	if err == nil {
		return p.done(res, g, TierTemplate), nil
	}
	res.Skipped = append(res.Skipped, fmt.Errorf("template tier: %w", err))
	log.Info("template tier skipped", "error", err)

	g, err = p.guard(func() (*models.Generation, error) { return p.htmlTier(ctx, req) })
	if err == nil {
		return p.done(res, g, TierHTML), nil
	}
	res.Skipped = append(res.Skipped, fmt.Errorf("html tier: %w", err))
	log.Warn("html tier failed", "error", err)

	// The error card is stored even when the caller's context is already done.
	g, err = p.guard(func() (*models.Generation, error) {
		return p.errorTier(context.WithoutCancel(ctx), req, err)
	})
	if err != nil {
		log.Error("error tier failed", "error", err)
		return nil, fmt.Errorf("store error generation: %w", errors.Join(append(res.Skipped, err)...))
	}
	return p.done(res, g, TierError), nil
}

func (p *Pipeline) done(res *Result, g *models.Generation, tier Tier) *Result {
	metrics.Generations.WithLabelValues(string(tier)).Inc()
	p.logger.Info("generation stored", "room_id", g.RoomID, "generation_id", g.GenerationIDString(), "tier", tier, "type", g.Type)
	res.Generation = g
	res.Tier = tier
	return res
}

// guard turns a panicking tier into an error.
func (p *Pipeline) guard(tier func() (*models.Generation, error)) (g *models.Generation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tier()
}

var rankSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"template_id": map[string]any{"type": "string"},
		"confidence":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"reasoning":   map[string]any{"type": "string"},
	},
	"required": []string{"template_id", "confidence"},
}

const rankSystem = `You pick the visualization template that best fits a chat request.
Return the id of the single best template and your confidence from 0 to 1 that it can express what was asked. Use a low confidence when none fits well.`

var rankPrompt = llm.NewPrompt(`Templates:
{{range .templates}}- id: {{.id}}
  name: {{.name}}{{if .description}}
  description: {{.description}}{{end}}{{if .tags}}
  tags: {{.tags}}{{end}}
{{end}}
Request:
{{.prompt}}`, "templates", "prompt")

const extractSystem = `You extract structured properties for a visualization from a chat request.
Use only information present in the request and the conversation. Keep labels short.`

var extractPrompt = llm.NewPrompt(`{{if .history}}Conversation:
{{.history}}

{{end}}{{if .prior}}Current canvas:
{{.prior}}

{{end}}Build a {{.type}} for this request:
{{.prompt}}`, "type", "prompt", "history", "prior")

type ranking struct {
	TemplateID string  `json:"template_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (p *Pipeline) templateTier(ctx context.Context, req Request) (*models.Generation, error) {
	templates, err := p.store.QueryTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplate
	}

	pick, err := p.rank(ctx, req, templates)
	if err != nil {
		return nil, err
	}

	var chosen *models.Template
	for i := range templates {
		if templates[i].TemplateIDString() == pick.TemplateID {
			chosen = &templates[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: ranked unknown template %q", ErrNoTemplate, pick.TemplateID)
	}
	if threshold := chosen.EffectiveThreshold(); pick.Confidence < threshold {
		return nil, fmt.Errorf("%w: %s scored %.2f, needs %.2f", ErrBelowThreshold, pick.TemplateID, pick.Confidence, threshold)
	}

	tmpl, err := p.store.GetTemplate(ctx, pick.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", pick.TemplateID, err)
	}

	vizType, how := ResolveType(*tmpl)
	if how == ResolvedByDefault {
		p.logger.Warn("defaulting template type", "template_id", pick.TemplateID, "type", vizType, "error", ErrUnresolvableTemplate)
	}
	schema, _ := Schema(vizType)

	prompt, err := extractPrompt.Format(map[string]any{
		"type":    vizType,
		"prompt":  req.Prompt,
		"history": req.History,
		"prior":   req.PriorMarkup,
	})
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := p.gen.GenerateObject(ctx, llm.ObjectRequest{
		System:    extractSystem,
		Prompt:    prompt,
		Schema:    schema,
		MaxTokens: 2000,
	}, &raw); err != nil {
		return nil, fmt.Errorf("extract %s props: %w", vizType, err)
	}

	props, err := p.registry.Validate(vizType, raw)
	if err != nil {
		return nil, err
	}
	if _, err := p.renderer.Render(*tmpl, vizType, props); err != nil {
		return nil, err
	}

	templateID := pick.TemplateID
	return p.store.InsertGeneration(ctx, models.GenerationInput{
		RoomID:       req.RoomID,
		Type:         vizType,
		RenderMethod: models.RenderTemplate,
		TemplateID:   &templateID,
		Props:        props,
		Confidence:   req.Confidence,
		Summary:      summarize(props, req.Prompt),
		CreatedBy:    req.CreatedBy,
		Metadata: map[string]any{
			"tier":                string(TierTemplate),
			"template_confidence": pick.Confidence,
			"reasoning":           pick.Reasoning,
			"type_resolution":     string(how),
		},
	})
}

func (p *Pipeline) rank(ctx context.Context, req Request, templates []models.Template) (ranking, error) {
	entries := make([]map[string]any, len(templates))
	for i, t := range templates {
		desc := ""
		if t.Description != nil {
			desc = *t.Description
		}
		entries[i] = map[string]any{
			"id":          t.TemplateIDString(),
			"name":        t.Name,
			"description": desc,
			"tags":        strings.Join(t.Tags, ", "),
		}
	}
	prompt, err := rankPrompt.Format(map[string]any{"templates": entries, "prompt": req.Prompt})
	if err != nil {
		return ranking{}, err
	}

	var out ranking
	if err := p.gen.GenerateObject(ctx, llm.ObjectRequest{
		System:    rankSystem,
		Prompt:    prompt,
		Schema:    rankSchema,
		Hint:      llm.HintFast,
		MaxTokens: 300,
	}, &out); err != nil {
		return ranking{}, fmt.Errorf("rank templates: %w", err)
	}

	out.TemplateID = strings.TrimPrefix(strings.TrimSpace(out.TemplateID), "template:")
	if out.Confidence > 1 {
		out.Confidence /= 100
	}
	return out, nil
}

const htmlSystem = `You build one small visualization as a complete, self-contained HTML document.
Rules:
- Output only the HTML document, starting with <!DOCTYPE html>.
- Inline all styles and scripts. Load nothing from the network.
- Make it interactive where it helps, and accessible: semantic elements, labels, sufficient contrast.
- Support dark mode with prefers-color-scheme.`

var htmlPrompt = llm.NewPrompt(`{{if .history}}Conversation:
{{.history}}

{{end}}{{if .prior}}The canvas currently shows:
{{.prior}}

{{end}}Request:
{{.prompt}}`, "prompt", "history", "prior")

func (p *Pipeline) htmlTier(ctx context.Context, req Request) (*models.Generation, error) {
	prompt, err := htmlPrompt.Format(map[string]any{
		"prompt":  req.Prompt,
		"history": req.History,
		"prior":   req.PriorMarkup,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.gen.GenerateText(ctx, llm.TextRequest{
		System:    htmlSystem,
		Prompt:    prompt,
		MaxTokens: 8000,
	})
	if err != nil {
		return nil, fmt.Errorf("generate markup: %w", err)
	}
	markup := llm.StripCodeFences(out)
	if markup == "" {
		return nil, fmt.Errorf("%w: empty markup", llm.ErrMalformedResult)
	}
	doc, err := WrapDocument(markup, truncate(req.Prompt, 80))
	if err != nil {
		return nil, err
	}

	return p.store.InsertGeneration(ctx, models.GenerationInput{
		RoomID:       req.RoomID,
		Type:         models.GenerationTypeHTML,
		RenderMethod: models.RenderFallbackIframe,
		RawMarkup:    &doc,
		Confidence:   req.Confidence,
		Summary:      truncate(req.Prompt, 120),
		CreatedBy:    req.CreatedBy,
		Metadata:     map[string]any{"tier": string(TierHTML)},
	})
}

func (p *Pipeline) errorTier(ctx context.Context, req Request, cause error) (*models.Generation, error) {
	msg := "The visualization could not be generated."
	if cause != nil {
		msg = cause.Error()
	}
	doc := ErrorDocument(msg)

	return p.store.InsertGeneration(ctx, models.GenerationInput{
		RoomID:       req.RoomID,
		Type:         models.GenerationTypeError,
		RenderMethod: models.RenderFallbackIframe,
		RawMarkup:    &doc,
		Confidence:   req.Confidence,
		Summary:      "Visualization failed",
		CreatedBy:    req.CreatedBy,
		Metadata:     map[string]any{"tier": string(TierError), "error": msg},
	})
}

func summarize(props map[string]any, prompt string) string {
	if title, ok := props["title"].(string); ok && strings.TrimSpace(title) != "" {
		return title
	}
	return truncate(prompt, 120)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
