package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 10 * time.Second
	pongWait     = 3 * pingInterval
	sendBuffer   = 32
)

// Hub fans events out to WebSocket viewers connected to this process.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{} // channel -> subscribers
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers are served from other origins
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("publisher", "hub"),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// ServeRoom upgrades the request and streams every event of the room's channel
// to the connection until the client goes away.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	channel := Channel(roomID)
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(channel, sub)
	h.logger.Debug("viewer connected", "channel", channel, "remote", r.RemoteAddr)

	go h.writeLoop(sub)
	h.readLoop(sub)

	h.remove(channel, sub)
	h.logger.Debug("viewer disconnected", "channel", channel, "remote", r.RemoteAddr)
	return nil
}

// Publish implements Publisher. Slow viewers whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, channel string, event Event, data any) error {
	frame, err := json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[channel] {
		select {
		case sub.send <- frame:
		default:
			h.logger.Warn("dropping slow viewer", "channel", channel)
			delete(h.subs[channel], sub)
			sub.close()
		}
	}
	return nil
}

// Subscribers returns the number of viewers connected to a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, subs := range h.subs {
		for sub := range subs {
			sub.close()
		}
		delete(h.subs, channel)
	}
}

func (h *Hub) add(channel string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*subscriber]struct{})
	}
	h.subs[channel][sub] = struct{}{}
}

func (h *Hub) remove(channel string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[channel][sub]; ok {
		delete(h.subs[channel], sub)
		sub.close()
	}
	if len(h.subs[channel]) == 0 {
		delete(h.subs, channel)
	}
}

// readLoop discards client frames and returns when the connection fails.
func (h *Hub) readLoop(sub *subscriber) {
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
