// Package persona provides a reloadable in-memory cache of AI personas.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/chorus/internal/models"
)

// Source loads the persona roster.
type Source interface {
	QueryAgents(ctx context.Context) ([]models.Agent, error)
}

// Cache holds the persona roster. It is only refreshed by Reload, either
// called explicitly or from Run on a fixed interval.
type Cache struct {
	src    Source
	logger *slog.Logger

	mu       sync.RWMutex
	agents   []models.Agent
	byID     map[string]models.Agent
	loadedAt time.Time
}

// NewCache creates an empty cache. Call Reload before first use.
func NewCache(src Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{src: src, logger: logger.With("component", "persona"), byID: map[string]models.Agent{}}
}

// Reload replaces the roster with the current contents of the source.
// On error the previous roster is kept.
func (c *Cache) Reload(ctx context.Context) error {
	agents, err := c.src.QueryAgents(ctx)
	if err != nil {
		return fmt.Errorf("reload personas: %w", err)
	}

	byID := make(map[string]models.Agent, len(agents))
	for _, a := range agents {
		byID[a.AgentIDString()] = a
	}

	c.mu.Lock()
	c.agents = agents
	c.byID = byID
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("personas loaded", "count", len(agents))
	return nil
}

// Run reloads every interval until ctx is done. A non-positive interval returns immediately.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Reload(ctx); err != nil {
				c.logger.Warn("scheduled persona reload failed", "error", err)
			}
		}
	}
}

// All returns a copy of the roster in source order.
func (c *Cache) All() []models.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// Get returns the persona with id.
func (c *Cache) Get(id string) (models.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byID[id]
	return a, ok
}

// IsAgent reports whether userID belongs to a persona.
func (c *Cache) IsAgent(userID string) bool {
	_, ok := c.Get(userID)
	return ok
}

// LoadedAt returns the time of the last successful reload.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
