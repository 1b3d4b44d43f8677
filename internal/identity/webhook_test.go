package identity

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func signedHeaders(t *testing.T, payload []byte, at time.Time) http.Header {
	t.Helper()
	wh, err := NewWebhookVerifier(testWebhookSecret)
	require.NoError(t, err)

	sig := wh.Sign("msg_1", at, payload)

	h := http.Header{}
	h.Set(HeaderWebhookID, "msg_1")
	h.Set(HeaderWebhookTimestamp, strconv.FormatInt(at.Unix(), 10))
	h.Set(HeaderWebhookSignature, sig)
	return h
}

func TestWebhookVerifier(t *testing.T) {
	wh, err := NewWebhookVerifier(testWebhookSecret)
	require.NoError(t, err)
	payload := []byte(`{"event":"user.deleted","data":{"id":"x"}}`)

	tests := []struct {
		name    string
		payload []byte
		headers http.Header
		wantErr bool
	}{
		{"signed", payload, signedHeaders(t, payload, time.Now()), false},
		{"unsigned", payload, http.Header{}, true},
		{"tampered body", []byte(`{"event":"user.deleted","data":{"id":"y"}}`), signedHeaders(t, payload, time.Now()), true},
		{"stale timestamp", payload, signedHeaders(t, payload, time.Now().Add(-time.Hour)), true},
		{"future timestamp", payload, signedHeaders(t, payload, time.Now().Add(time.Hour)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wh.Verify(tt.payload, tt.headers)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookAcceptsAnyListedSignature(t *testing.T) {
	wh, err := NewWebhookVerifier(testWebhookSecret)
	require.NoError(t, err)
	payload := []byte(`{}`)

	h := signedHeaders(t, payload, time.Now())
	// During secret rotation the provider sends one entry per secret.
	h.Set(HeaderWebhookSignature, "v1,bm9wZQ== "+h.Get(HeaderWebhookSignature))
	assert.NoError(t, wh.Verify(payload, h))

	h.Set(HeaderWebhookSignature, "v2,"+strings.TrimPrefix(h.Get(HeaderWebhookSignature), "v1,bm9wZQ== v1,"))
	assert.ErrorIs(t, wh.Verify(payload, h), ErrWebhookSignature)
}

func TestNewWebhookVerifierRejectsBadSecrets(t *testing.T) {
	for _, secret := range []string{"  ", "whsec_", "whsec_%%%"} {
		_, err := NewWebhookVerifier(secret)
		assert.Error(t, err, secret)
	}
}
