package broadcast

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
)

// AuthVersion is the request signing scheme version.
const AuthVersion = "1.0"

// Signer authenticates REST requests to a Pusher-compatible backbone.
type Signer struct {
	AppID  string
	Key    string
	Secret string
}

// EventsPath returns the REST path events are posted to.
func (s Signer) EventsPath() string {
	return "/apps/" + s.AppID + "/events"
}

// BodyMD5 returns the hex MD5 digest of a request body.
func BodyMD5(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// StringToSign builds "<METHOD>\n<path>\n<sorted query>" for the auth parameters.
func (s Signer) StringToSign(method, path string, body []byte, timestamp int64) string {
	return method + "\n" + path + "\n" + s.authParams(body, timestamp).Encode()
}

// Sign returns the auth query parameters, including auth_signature, for a request.
func (s Signer) Sign(method, path string, body []byte, timestamp int64) url.Values {
	params := s.authParams(body, timestamp)
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write([]byte(method + "\n" + path + "\n" + params.Encode()))
	params.Set("auth_signature", hex.EncodeToString(mac.Sum(nil)))
	return params
}

func (s Signer) authParams(body []byte, timestamp int64) url.Values {
	return url.Values{
		"auth_key":       {s.Key},
		"auth_timestamp": {strconv.FormatInt(timestamp, 10)},
		"auth_version":   {AuthVersion},
		"body_md5":       {BodyMD5(body)},
	}
}
