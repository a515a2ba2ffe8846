package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPusherClientPublish(t *testing.T) {
	signer := Signer{AppID: "42", Key: "key", Secret: "secret"}

	var gotEvent pusherEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/apps/42/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotEvent))

		q := r.URL.Query()
		ts, err := strconv.ParseInt(q.Get("auth_timestamp"), 10, 64)
		require.NoError(t, err)
		want := signer.Sign(http.MethodPost, r.URL.Path, body, ts)
		assert.Equal(t, want.Get("auth_signature"), q.Get("auth_signature"))
		assert.Equal(t, BodyMD5(body), q.Get("body_md5"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	p := NewPusherClient(PusherConfig{AppID: "42", Key: "key", Secret: "secret", Host: srv.URL}, srv.Client(), nil)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := p.Publish(context.Background(), Channel("lobby"), EventNewStatus, NewStatus{StatusType: StatusGenerating})
	require.NoError(t, err)

	assert.Equal(t, "new-status", gotEvent.Name)
	assert.Equal(t, []string{"room-lobby"}, gotEvent.Channels)
	assert.JSONEq(t, `{"status_type":"generating"}`, gotEvent.Data)
}

func TestPusherClientRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPusherClient(PusherConfig{AppID: "1", Key: "k", Secret: "s", Host: srv.URL}, srv.Client(), nil)
	err := p.Publish(context.Background(), "room-x", EventUserLeft, UserLeft{UserID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "invalid signature")
}

func TestPusherBaseURL(t *testing.T) {
	p := NewPusherClient(PusherConfig{AppID: "1", Key: "k", Secret: "s", Host: "api-eu.pusher.com"}, nil, nil)
	p.now = func() time.Time { return time.Unix(10, 0) }

	u := p.SignedURL([]byte("{}"))
	assert.Contains(t, u, "https://api-eu.pusher.com/apps/1/events?")
	assert.Contains(t, u, "auth_timestamp=10")
}

func TestPusherSignedURLAt(t *testing.T) {
	p := NewPusherClient(PusherConfig{AppID: "1", Key: "k", Secret: "s", Host: "http://localhost:4567/"}, nil, nil)

	u := p.SignedURLAt([]byte("{}"), 1353088179)
	assert.True(t, strings.HasPrefix(u, "http://localhost:4567/apps/1/events?"))
	assert.Contains(t, u, "auth_timestamp=1353088179")
	assert.Contains(t, u, "body_md5="+BodyMD5([]byte("{}")))
	assert.Contains(t, u, "auth_signature=")
}
