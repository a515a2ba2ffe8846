package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chorus/internal/models"
)

// InsertMessage appends a message to a room and returns the stored record.
func (c *Client) InsertMessage(ctx context.Context, roomID, userID, content string) (*models.Message, error) {
	rows, err := query[models.Message](ctx, c, `
		CREATE type::record("message", $id) SET
			room_id = $room_id,
			user_id = $user_id,
			content = $content,
			ai_read = false,
			created_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":      uuid.NewString(),
		"room_id": roomID,
		"user_id": userID,
		"content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert message: no result returned")
	}
	return &rows[0], nil
}

// QueryMessages returns up to limit messages of a room ordered by creation time.
// With desc the newest message comes first.
func (c *Client) QueryMessages(ctx context.Context, roomID string, limit int, desc bool) ([]models.Message, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT * FROM message
		WHERE room_id = $room_id
		ORDER BY created_at %s
		LIMIT $limit
	`, order)

	rows, err := query[models.Message](ctx, c, sql, map[string]any{
		"room_id": roomID,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	if rows == nil {
		rows = []models.Message{}
	}
	return rows, nil
}

// QueryRecentMessages returns the newest limit messages of a room, oldest first.
func (c *Client) QueryRecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	rows, err := c.QueryMessages(ctx, roomID, limit, true)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	return rows, nil
}

// MarkMessageRead flags a message as seen by the AI layer.
func (c *Client) MarkMessageRead(ctx context.Context, id string) error {
	rows, err := query[models.Message](ctx, c, `
		UPDATE type::record("message", $id) SET ai_read = true RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("mark message read %s: %w", id, ErrNotFound)
	}
	return nil
}

// JoinRoom records a participant. Joining twice keeps the original join time.
func (c *Client) JoinRoom(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	rows, err := query[models.Participant](ctx, c, `
		UPSERT type::record("participant", $id) SET
			room_id = $room_id,
			user_id = $user_id,
			joined_at = IF joined_at THEN joined_at ELSE time::now() END
		RETURN AFTER
	`, map[string]any{
		"id":      participantID(roomID, userID),
		"room_id": roomID,
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("join room: no result returned")
	}
	return &rows[0], nil
}

// LeaveRoom deletes a participant record. Returns ErrNotFound if the user was not in the room.
func (c *Client) LeaveRoom(ctx context.Context, roomID, userID string) error {
	rows, err := query[models.Participant](ctx, c, `
		DELETE type::record("participant", $id) RETURN BEFORE
	`, map[string]any{"id": participantID(roomID, userID)})
	if err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("leave room %s/%s: %w", roomID, userID, ErrNotFound)
	}
	return nil
}

// QueryParticipants lists the members of a room in join order.
func (c *Client) QueryParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	rows, err := query[models.Participant](ctx, c, `
		SELECT * FROM participant WHERE room_id = $room_id ORDER BY joined_at ASC
	`, map[string]any{"room_id": roomID})
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	if rows == nil {
		rows = []models.Participant{}
	}
	return rows, nil
}

func participantID(roomID, userID string) string {
	return roomID + ":" + userID
}
