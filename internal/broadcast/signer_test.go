package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference values from the Pusher REST API authentication documentation.
const (
	refAppID     = "3"
	refKey       = "278d425bdf160c739803"
	refSecret    = "7ad3773142a6692b25b8"
	refTimestamp = 1353088179
	refBody      = `{"name":"foo","channels":["project-3"],"data":"{\"some\":\"data\"}"}`
	refMD5       = "ec365a775a4cd0599faeb73354201b6f"
	refSignature = "da454824c97ba181a32ccc17a72625ba02771f50b50e1e7430e47a1f3f457e6c"
)

func TestSignerMatchesReference(t *testing.T) {
	s := Signer{AppID: refAppID, Key: refKey, Secret: refSecret}

	assert.Equal(t, "/apps/3/events", s.EventsPath())
	assert.Equal(t, refMD5, BodyMD5([]byte(refBody)))

	want := "POST\n/apps/3/events\nauth_key=278d425bdf160c739803&auth_timestamp=1353088179&auth_version=1.0&body_md5=" + refMD5
	assert.Equal(t, want, s.StringToSign("POST", s.EventsPath(), []byte(refBody), refTimestamp))

	q := s.Sign("POST", s.EventsPath(), []byte(refBody), refTimestamp)
	assert.Equal(t, refSignature, q.Get("auth_signature"))
	assert.Equal(t, refKey, q.Get("auth_key"))
	assert.Equal(t, "1353088179", q.Get("auth_timestamp"))
	assert.Equal(t, "1.0", q.Get("auth_version"))
	assert.Equal(t, refMD5, q.Get("body_md5"))
}

func TestEncodeEventBodyMatchesReference(t *testing.T) {
	body, err := EncodeEventBody("project-3", Event("foo"), map[string]string{"some": "data"})
	require.NoError(t, err)
	assert.Equal(t, refBody, string(body))
}

func TestSignatureChangesWithInputs(t *testing.T) {
	s := Signer{AppID: refAppID, Key: refKey, Secret: refSecret}
	base := s.Sign("POST", s.EventsPath(), []byte(refBody), refTimestamp).Get("auth_signature")

	tests := []struct {
		name string
		sig  string
	}{
		{"body", s.Sign("POST", s.EventsPath(), []byte(refBody+" "), refTimestamp).Get("auth_signature")},
		{"timestamp", s.Sign("POST", s.EventsPath(), []byte(refBody), refTimestamp+1).Get("auth_signature")},
		{"secret", Signer{AppID: refAppID, Key: refKey, Secret: "other"}.Sign("POST", s.EventsPath(), []byte(refBody), refTimestamp).Get("auth_signature")},
		{"path", s.Sign("POST", "/apps/4/events", []byte(refBody), refTimestamp).Get("auth_signature")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.sig)
		})
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "room-lobby", Channel("lobby"))
}
