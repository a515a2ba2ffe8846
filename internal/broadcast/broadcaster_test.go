package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type published struct {
	channel string
	event   Event
	data    any
}

type recordingPublisher struct {
	events []published
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, event Event, data any) error {
	r.events = append(r.events, published{channel, event, data})
	return r.err
}

func TestBroadcasterDeliversToAllTargets(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("down")}
	ok := &recordingPublisher{}
	collector := metrics.NewCollector()
	b := NewBroadcaster(collector, nil, Target{"pusher", failing}, Target{"hub", ok})

	err := b.Status(context.Background(), "lobby", StatusGenerating, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pusher: down")

	require.Len(t, ok.events, 1, "a failing target does not block the next")
	assert.Equal(t, "room-lobby", ok.events[0].channel)
	assert.Equal(t, EventNewStatus, ok.events[0].event)

	snap := collector.Snapshot()
	require.NotNil(t, snap.Broadcast)
	assert.Equal(t, int64(2), snap.Broadcast.Count)
	assert.Equal(t, int64(1), snap.Broadcast.Errors)
}

func TestBroadcasterPayloads(t *testing.T) {
	rec := &recordingPublisher{}
	b := NewBroadcaster(nil, nil, Target{"rec", rec})
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	slug := "pizza-chart"

	require.NoError(t, b.NewMessage(ctx, models.Message{
		ID:        surrealmodels.NewRecordID("message", "m1"),
		RoomID:    "lobby",
		UserID:    "ada",
		Content:   "hi",
		CreatedAt: now,
	}))
	require.NoError(t, b.UserJoined(ctx, models.Participant{RoomID: "lobby", UserID: "bob", JoinedAt: now}))
	require.NoError(t, b.UserLeft(ctx, "lobby", "bob"))
	require.NoError(t, b.NewGeneration(ctx, models.Generation{
		ID:        surrealmodels.NewRecordID("generation", "g1"),
		RoomID:    "lobby",
		Type:      "chart",
		Slug:      &slug,
		CreatedAt: now,
	}))

	require.Len(t, rec.events, 4)
	assert.Equal(t, NewMessage{ID: "m1", Content: "hi", CreatedAt: now, UserID: "ada"}, rec.events[0].data)
	assert.Equal(t, UserJoined{UserID: "bob", JoinedAt: now}, rec.events[1].data)
	assert.Equal(t, UserLeft{UserID: "bob"}, rec.events[2].data)
	assert.Equal(t, NewGeneration{GenerationID: "g1", Type: "chart", CreatedAt: now, Slug: &slug}, rec.events[3].data)
	for _, e := range rec.events {
		assert.Equal(t, "room-lobby", e.channel)
	}
}
