package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chorus/internal/models"
)

// InsertGeneration validates and stores a generation. The slug is derived from the summary.
func (c *Client) InsertGeneration(ctx context.Context, in models.GenerationInput) (*models.Generation, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}

	var slug *string
	if s := models.Slugify(in.Summary); s != "" {
		slug = &s
	}

	rows, err := query[models.Generation](ctx, c, `
		CREATE type::record("generation", $id) SET
			room_id = $room_id,
			type = $type,
			render_method = $render_method,
			template_id = $template_id,
			props = $props,
			raw_markup = $raw_markup,
			confidence = $confidence,
			summary = $summary,
			slug = $slug,
			created_by = $created_by,
			metadata = $metadata,
			created_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":            uuid.NewString(),
		"room_id":       in.RoomID,
		"type":          in.Type,
		"render_method": string(in.RenderMethod),
		"template_id":   in.TemplateID,
		"props":         in.Props,
		"raw_markup":    in.RawMarkup,
		"confidence":    in.Confidence,
		"summary":       in.Summary,
		"slug":          slug,
		"created_by":    in.CreatedBy,
		"metadata":      in.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert generation: no result returned")
	}
	return &rows[0], nil
}

// GetGeneration loads a generation by id. Returns ErrNotFound when it does not exist.
func (c *Client) GetGeneration(ctx context.Context, id string) (*models.Generation, error) {
	rows, err := query[models.Generation](ctx, c, `
		SELECT * FROM type::record("generation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get generation %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

// QueryLastGeneration returns the newest generation of a room, or nil if there is none.
func (c *Client) QueryLastGeneration(ctx context.Context, roomID string) (*models.Generation, error) {
	rows, err := query[models.Generation](ctx, c, `
		SELECT * FROM generation
		WHERE room_id = $room_id
		ORDER BY created_at DESC
		LIMIT 1
	`, map[string]any{"room_id": roomID})
	if err != nil {
		return nil, fmt.Errorf("query last generation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
