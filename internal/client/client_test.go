package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rooms/lobby/messages", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sam", body["user_id"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1","room_id":"lobby","user_id":"sam","content":"hi"}`))
	}))
	defer srv.Close()

	msg, err := New(srv.URL).PostMessage(context.Background(), "lobby", "sam", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "lobby", msg.RoomID)
	assert.Equal(t, "hi", msg.Content)
}

func TestListMessagesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	msgs, err := New(srv.URL).ListMessages(context.Background(), "lobby", 10, true)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  string
		notFound bool
	}{
		{"not found", http.StatusNotFound, `{"error":"not found"}`, "not found", true},
		{"api error", http.StatusBadRequest, `{"error":"invalid request: content required"}`, "content required", false},
		{"plain error", http.StatusBadGateway, "upstream down", "upstream down", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).ReloadAgents(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
		})
	}
}

func TestGetServerStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metrics":{"uptime_seconds":12.5,"llm_text":{"count":3}},"personas":2,"tasks":{"completed":4}}`))
	}))
	defer srv.Close()

	stats, err := New(srv.URL).GetServerStats(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, stats.Metrics.UptimeSeconds, 1e-9)
	require.NotNil(t, stats.Metrics.LLMText)
	assert.Equal(t, int64(3), stats.Metrics.LLMText.Count)
	assert.Equal(t, 2, stats.Personas)
	assert.Equal(t, 4, stats.Tasks["completed"])
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/lobby", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"channel": "room-lobby", "event": "new-message", "data": map[string]string{"content": "hi"}})
		_ = conn.WriteJSON(map[string]any{"channel": "room-lobby", "event": "new-status", "data": map[string]string{"status_type": "generating"}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	var events []string
	err := New(srv.URL).Watch(context.Background(), "lobby", func(f Frame) error {
		events = append(events, f.Event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new-message", "new-status"}, events)
}

func TestWatchStopsOnCallbackError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"event": "new-message"})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	stop := errors.New("stop")
	err := New(srv.URL).Watch(context.Background(), "lobby", func(Frame) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestRenderURL(t *testing.T) {
	c := New("http://example.com/")
	assert.Equal(t, "http://example.com/api/generations/g%201/render", c.RenderURL("g 1"))
	assert.True(t, strings.HasPrefix(c.BaseURL(), "http://example.com"))
}

func TestListTasksAndGetTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tasks":
			_, _ = w.Write([]byte(`[{"id":"t1","kind":"message","room_id":"lobby","status":"completed","outcome":"respond","started_at":"2026-01-02T15:04:05Z"}]`))
		case "/api/templates/bar-chart":
			_, _ = w.Write([]byte(`{"id":"bar-chart","name":"Bar Chart","type":"chart","threshold":0.75}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "respond", tasks[0].Outcome)
	assert.Nil(t, tasks[0].CompletedAt)

	tmpl, err := c.GetTemplate(context.Background(), "bar-chart")
	require.NoError(t, err)
	assert.Equal(t, "chart", tmpl.Type)

	_, err = c.GetTemplate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
