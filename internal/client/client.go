// Package client provides an HTTP and websocket client for the chorus server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Client talks to the chorus server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses CHORUS_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via CHORUS_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CHORUS_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("CHORUS_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a JSON request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// MESSAGES AND PARTICIPANTS
// =============================================================================

// PostMessage posts a message to a room as userID.
func (c *Client) PostMessage(ctx context.Context, roomID, userID, content string) (*Message, error) {
	var msg Message
	body := map[string]string{"user_id": userID, "content": content}
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "messages"), body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns up to limit messages of a room, oldest first unless desc.
func (c *Client) ListMessages(ctx context.Context, roomID string, limit int, desc bool) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if desc {
		q.Set("order", "desc")
	}
	path := roomPath(roomID, "messages")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Join adds userID to a room.
func (c *Client) Join(ctx context.Context, roomID, userID string) (*Participant, error) {
	var p Participant
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "participants"), map[string]string{"user_id": userID}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Leave removes userID from a room.
func (c *Client) Leave(ctx context.Context, roomID, userID string) error {
	return c.do(ctx, http.MethodDelete, roomPath(roomID, "participants", userID), nil, nil)
}

// =============================================================================
// CATALOG
// =============================================================================

// ListAgents returns all personas.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// UpsertAgent creates or replaces a persona.
func (c *Client) UpsertAgent(ctx context.Context, in models.AgentInput) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/api/agents", in, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// ReloadAgents makes the server re-read its persona cache and returns the persona count.
func (c *Client) ReloadAgents(ctx context.Context) (int, error) {
	var out struct {
		Personas int `json:"personas"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/agents/reload", nil, &out); err != nil {
		return 0, err
	}
	return out.Personas, nil
}

// ListTemplates returns template summaries.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// GetTemplate returns one template.
func (c *Client) GetTemplate(ctx context.Context, id string) (*Template, error) {
	var t Template
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTemplate creates or replaces a template.
func (c *Client) UpsertTemplate(ctx context.Context, in models.TemplateInput) (*Template, error) {
	var t Template
	if err := c.do(ctx, http.MethodPost, "/api/templates", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetGeneration returns a stored generation.
func (c *Client) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	var g Generation
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// RenderURL returns the URL serving a generation's HTML document.
func (c *Client) RenderURL(generationID string) string {
	return c.baseURL + "/api/generations/" + url.PathEscape(generationID) + "/render"
}

// =============================================================================
// STATS
// =============================================================================

// ServerStats is the body of GET /stats.
type ServerStats struct {
	Metrics         metrics.Snapshot `json:"metrics"`
	Personas        int              `json:"personas"`
	Rooms           int              `json:"rooms"`
	PendingRechecks int              `json:"pending_rechecks"`
	Tasks           map[string]int   `json:"tasks"`
}

// ListTasks returns the server's recent orchestration tasks, newest first.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetServerStats fetches server statistics.
func (c *Client) GetServerStats(ctx context.Context) (*ServerStats, error) {
	var stats ServerStats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// Frame is one event received from a room's websocket.
type Frame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Watch streams a room's events to onFrame until ctx is cancelled, the server closes
// the connection, or onFrame returns an error.
func (c *Client) Watch(ctx context.Context, roomID string, onFrame func(Frame) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws/" + url.PathEscape(roomID))
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := onFrame(frame); err != nil {
			return err
		}
	}
}

func roomPath(roomID string, parts ...string) string {
	path := "/api/rooms/" + url.PathEscape(roomID)
	for _, p := range parts {
		path += "/" + url.PathEscape(p)
	}
	return path
}
