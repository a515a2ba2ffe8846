package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

// Target is a named Publisher.
type Target struct {
	Name      string
	Publisher Publisher
}

// Broadcaster delivers every event to all targets in order and builds the
// typed payloads for room events.
type Broadcaster struct {
	targets   []Target
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewBroadcaster creates a broadcaster over targets.
func NewBroadcaster(collector *metrics.Collector, logger *slog.Logger, targets ...Target) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{targets: targets, collector: collector, logger: logger.With("component", "broadcast")}
}

// Publish delivers to every target. A failing target does not stop the others;
// their errors are joined.
func (b *Broadcaster) Publish(ctx context.Context, channel string, event Event, data any) error {
	var errs []error
	for _, t := range b.targets {
		start := time.Now()
		err := t.Publisher.Publish(ctx, channel, event, data)
		b.collector.RecordTiming(metrics.OpBroadcast, time.Since(start), err)

		status := "ok"
		if err != nil {
			status = "error"
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			b.logger.Warn("broadcast failed", "target", t.Name, "channel", channel, "event", event, "error", err)
		}
		metrics.Broadcasts.WithLabelValues(string(event), status).Inc()
	}
	return errors.Join(errs...)
}

// NewMessage publishes a new-message event for msg.
func (b *Broadcaster) NewMessage(ctx context.Context, msg models.Message) error {
	return b.Publish(ctx, Channel(msg.RoomID), EventNewMessage, NewMessage{
		ID:        msg.MessageIDString(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		UserID:    msg.UserID,
	})
}

// UserJoined publishes a user-joined event.
func (b *Broadcaster) UserJoined(ctx context.Context, p models.Participant) error {
	return b.Publish(ctx, Channel(p.RoomID), EventUserJoined, UserJoined{UserID: p.UserID, JoinedAt: p.JoinedAt})
}

// UserLeft publishes a user-left event.
func (b *Broadcaster) UserLeft(ctx context.Context, roomID, userID string) error {
	return b.Publish(ctx, Channel(roomID), EventUserLeft, UserLeft{UserID: userID})
}

// NewGeneration publishes a new-generation event referencing g.
func (b *Broadcaster) NewGeneration(ctx context.Context, g models.Generation) error {
	return b.Publish(ctx, Channel(g.RoomID), EventNewGeneration, NewGeneration{
		GenerationID: g.GenerationIDString(),
		Type:         g.Type,
		CreatedAt:    g.CreatedAt,
		Slug:         g.Slug,
	})
}

// Status publishes a new-status event.
func (b *Broadcaster) Status(ctx context.Context, roomID, statusType, message string) error {
	return b.Publish(ctx, Channel(roomID), EventNewStatus, NewStatus{StatusType: statusType, Message: message})
}
