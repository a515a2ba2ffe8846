package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/chorus/internal/models"
)

// QueryAgents returns every persona ordered by name.
func (c *Client) QueryAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := query[models.Agent](ctx, c, `SELECT * FROM agent ORDER BY name ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	if rows == nil {
		rows = []models.Agent{}
	}
	return rows, nil
}

// UpsertAgent creates or replaces a persona.
func (c *Client) UpsertAgent(ctx context.Context, in models.AgentInput) (*models.Agent, error) {
	if in.ID == "" {
		in.ID = models.Slugify(in.Name)
	}
	rows, err := query[models.Agent](ctx, c, `
		UPSERT type::record("agent", $id) SET
			name = $name,
			personality = $personality,
			voice = $voice
		RETURN AFTER
	`, map[string]any{
		"id":          in.ID,
		"name":        in.Name,
		"personality": in.Personality,
		"voice":       in.Voice,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert agent: no result returned")
	}
	return &rows[0], nil
}

// QueryTemplates returns template summaries (no schema, examples or markup) ordered by name.
func (c *Client) QueryTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := query[models.Template](ctx, c, `
		SELECT id, name, description, tags, type, schema_name, threshold, created_at, updated_at
		FROM template
		ORDER BY name ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	if rows == nil {
		rows = []models.Template{}
	}
	return rows, nil
}

// GetTemplate loads a full template. Returns ErrNotFound when it does not exist.
func (c *Client) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	rows, err := query[models.Template](ctx, c, `
		SELECT * FROM type::record("template", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get template %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

// UpsertTemplate creates or replaces a template, keeping created_at on update.
func (c *Client) UpsertTemplate(ctx context.Context, in models.TemplateInput) (*models.Template, error) {
	if in.ID == "" {
		in.ID = models.Slugify(in.Name)
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	if in.Threshold <= 0 {
		in.Threshold = models.DefaultTemplateThreshold
	}

	rows, err := query[models.Template](ctx, c, `
		UPSERT type::record("template", $id) SET
			name = $name,
			description = $description,
			tags = $tags,
			type = $type,
			schema_name = $schema_name,
			schema = $schema,
			threshold = $threshold,
			example_prompt = $example_prompt,
			example_props = $example_props,
			markup = $markup,
			fallback_markup = $fallback_markup,
			created_at = IF created_at THEN created_at ELSE time::now() END,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":              in.ID,
		"name":            in.Name,
		"description":     in.Description,
		"tags":            in.Tags,
		"type":            in.Type,
		"schema_name":     in.SchemaName,
		"schema":          in.Schema,
		"threshold":       in.Threshold,
		"example_prompt":  in.ExamplePrompt,
		"example_props":   in.ExampleProps,
		"markup":          in.Markup,
		"fallback_markup": in.FallbackMarkup,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert template: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert template: no result returned")
	}
	return &rows[0], nil
}
