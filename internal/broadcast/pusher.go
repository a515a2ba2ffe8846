package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDelivery marks a rejected or failed push delivery.
var ErrDelivery = errors.New("push delivery failed")

// PusherConfig configures the push backbone client.
type PusherConfig struct {
	AppID  string
	Key    string
	Secret string
	Host   string // "api-mt1.pusher.com" or a full base URL such as "http://localhost:4567"
}

// PusherClient posts signed events to a Pusher-compatible REST API.
type PusherClient struct {
	signer  Signer
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewPusherClient creates a push backbone client. A nil httpClient uses a 10s timeout client.
func NewPusherClient(cfg PusherConfig, httpClient *http.Client, logger *slog.Logger) *PusherClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimSuffix(cfg.Host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &PusherClient{
		signer:  Signer{AppID: cfg.AppID, Key: cfg.Key, Secret: cfg.Secret},
		baseURL: base,
		http:    httpClient,
		logger:  logger.With("publisher", "pusher"),
		now:     time.Now,
	}
}

// pusherEvent is the REST request body. Data is itself a JSON document encoded as a string.
type pusherEvent struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
	Data     string   `json:"data"`
}

// EncodeEventBody builds the request body for one event on one channel.
func EncodeEventBody(channel string, event Event, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	body, err := json.Marshal(pusherEvent{
		Name:     string(event),
		Channels: []string{channel},
		Data:     string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("encode event body: %w", err)
	}
	return body, nil
}

// SignedURL returns the full signed events URL for body.
func (p *PusherClient) SignedURL(body []byte) string {
	return p.SignedURLAt(body, p.now().Unix())
}

// SignedURLAt is SignedURL with a fixed unix timestamp.
func (p *PusherClient) SignedURLAt(body []byte, timestamp int64) string {
	path := p.signer.EventsPath()
	query := p.signer.Sign(http.MethodPost, path, body, timestamp)
	return p.baseURL + path + "?" + query.Encode()
}

// Publish implements Publisher.
func (p *PusherClient) Publish(ctx context.Context, channel string, event Event, data any) error {
	body, err := EncodeEventBody(channel, event, data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.SignedURL(body), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrDelivery, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Debug("event delivered", "channel", channel, "event", event, "body_len", len(body))
	return nil
}
