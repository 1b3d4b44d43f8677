package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Stack Auth signs webhooks the Svix way: HMAC-SHA256 over
// "<id>.<timestamp>.<body>" keyed with the base64 part of a whsec_ secret.
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"

	webhookSecretPrefix = "whsec_"
	signatureVersion    = "v1"
	webhookTolerance    = 5 * time.Minute
)

var (
	ErrWebhookHeaders   = errors.New("missing webhook signature headers")
	ErrWebhookStale     = errors.New("webhook timestamp outside tolerance")
	ErrWebhookSignature = errors.New("no matching webhook signature")
)

// WebhookVerifier checks that a webhook body was signed by the identity
// provider and is recent.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

type Webhook struct {
	key []byte
	now func() time.Time
}

// NewWebhookVerifier parses the project's whsec_ signing secret.
func NewWebhookVerifier(secret string) (*Webhook, error) {
	secret = strings.TrimPrefix(strings.TrimSpace(secret), webhookSecretPrefix)
	if secret == "" {
		return nil, errors.New("webhook signing secret is required")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &Webhook{key: key, now: time.Now}, nil
}

func (w *Webhook) Verify(payload []byte, headers http.Header) error {
	msgID := headers.Get(HeaderWebhookID)
	rawTS := headers.Get(HeaderWebhookTimestamp)
	sigs := headers.Get(HeaderWebhookSignature)
	if msgID == "" || rawTS == "" || sigs == "" {
		return ErrWebhookHeaders
	}

	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return fmt.Errorf("parse webhook timestamp: %w", err)
	}
	at := time.Unix(ts, 0)
	if d := w.now().Sub(at); d > webhookTolerance || d < -webhookTolerance {
		return ErrWebhookStale
	}

	expected := w.mac(msgID, at, payload)
	// The header holds space-separated "v1,<base64>" entries, one per
	// active secret.
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != signatureVersion {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrWebhookSignature
}

// Sign returns the signature header value for payload. Used to exercise
// the endpoint locally.
func (w *Webhook) Sign(msgID string, at time.Time, payload []byte) string {
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(w.mac(msgID, at, payload))
}

func (w *Webhook) mac(msgID string, at time.Time, payload []byte) []byte {
	h := hmac.New(sha256.New, w.key)
	h.Write([]byte(msgID + "." + strconv.FormatInt(at.Unix(), 10) + "."))
	h.Write(payload)
	return h.Sum(nil)
}
