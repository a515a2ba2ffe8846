package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ChangeAction is the kind of change carried by a live notification.
type ChangeAction string

// Change actions reported by SurrealDB live queries.
const (
	ActionCreate ChangeAction = "CREATE"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// ChangeEvent is one decoded live-query notification.
// Exactly one of Message or Participant is set, matching Table.
type ChangeEvent struct {
	Table       string
	Action      ChangeAction
	Message     *models.Message
	Participant *models.Participant
}

// Subscribe starts a live query per table and merges the decoded notifications
// into one channel. The channel is closed after ctx is cancelled and every live
// query has been killed. Tables other than message and participant are rejected.
func (c *Client) Subscribe(ctx context.Context, tables ...string) (<-chan ChangeEvent, error) {
	if len(tables) == 0 {
		tables = []string{TableMessage, TableParticipant}
	}

	type feed struct {
		table string
		id    string
		ch    chan connection.Notification
	}
	var feeds []feed
	kill := func() {
		for _, f := range feeds {
			if err := surrealdb.Kill(context.WithoutCancel(ctx), c.db, f.id); err != nil {
				c.logger.Warn("kill live query failed", "table", f.table, "error", err)
			}
		}
	}

	for _, table := range tables {
		if table != TableMessage && table != TableParticipant {
			kill()
			return nil, fmt.Errorf("subscribe: unsupported table %q", table)
		}
		id, err := surrealdb.Live(ctx, c.db, surrealmodels.Table(table), false)
		if err != nil {
			kill()
			return nil, fmt.Errorf("live %s: %w", table, wrapQueryError(err))
		}
		ch, err := c.db.LiveNotifications(id.String())
		if err != nil {
			feeds = append(feeds, feed{table: table, id: id.String()})
			kill()
			return nil, fmt.Errorf("live notifications %s: %w", table, err)
		}
		feeds = append(feeds, feed{table: table, id: id.String(), ch: ch})
		c.logger.Info("live query started", "table", table, "live_id", id.String())
	}

	out := make(chan ChangeEvent)
	var wg sync.WaitGroup
	for _, f := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-f.ch:
					if !ok {
						c.logger.Warn("live feed closed", "table", f.table)
						return
					}
					ev, err := c.decodeNotification(f.table, n)
					if err != nil {
						c.logger.Warn("skipping undecodable notification", "table", f.table, "action", n.Action, "error", err)
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		kill()
		close(out)
	}()

	return out, nil
}

func (c *Client) decodeNotification(table string, n connection.Notification) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Action: ChangeAction(n.Action)}

	data, err := c.codec.Marshal(n.Result)
	if err != nil {
		return ev, fmt.Errorf("re-encode result: %w", err)
	}

	switch table {
	case TableMessage:
		var msg models.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			return ev, fmt.Errorf("decode message: %w", err)
		}
		ev.Message = &msg
	case TableParticipant:
		var p models.Participant
		if err := c.codec.Unmarshal(data, &p); err != nil {
			return ev, fmt.Errorf("decode participant: %w", err)
		}
		ev.Participant = &p
	}
	return ev, nil
}
