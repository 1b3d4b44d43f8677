// Package identity verifies Stack Auth user sessions and signed webhooks.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/hop/internal/apperr"
)

const (
	DefaultAPIURL = "https://api.stack-auth.com/api/v1"

	headerAccessType   = "x-stack-access-type"
	headerProjectID    = "x-stack-project-id"
	headerServerKey    = "x-stack-secret-server-key"
	headerAccessToken  = "x-stack-access-token"
	headerRefreshToken = "x-stack-refresh-token"

	responseBodyReadLimit int64 = 64 << 10
)

var errCredentialsRequired = errors.New("stack project id and secret server key are required")

// Verifier resolves a session's token pair to the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, accessToken, refreshToken string) (uuid.UUID, error)
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	projectID  string
	serverKey  string
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIURL overrides the Stack Auth API base URL.
func WithAPIURL(apiURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(apiURL), "/"); trimmed != "" {
			c.apiURL = trimmed
		}
	}
}

func NewClient(projectID, serverKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	projectID = strings.TrimSpace(projectID)
	serverKey = strings.TrimSpace(serverKey)
	if projectID == "" || serverKey == "" {
		return nil, errCredentialsRequired
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     DefaultAPIURL,
		projectID:  projectID,
		serverKey:  serverKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type currentUser struct {
	ID string `json:"id"`
}

// Verify asks Stack Auth who owns the tokens. A rejected session is a
// FORBIDDEN error; an unreachable or failing provider is a DEPENDENCY error.
func (c *Client) Verify(ctx context.Context, accessToken, refreshToken string) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/users/me", nil)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.CodeInternal, err, "build identity request")
	}
	req.Header.Set(headerAccessType, "server")
	req.Header.Set(headerProjectID, c.projectID)
	req.Header.Set(headerServerKey, c.serverKey)
	req.Header.Set(headerAccessToken, accessToken)
	req.Header.Set(headerRefreshToken, refreshToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.CodeDependency, err, "call identity provider")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.CodeDependency, err, "read identity response")
	}

	switch {
	case resp.StatusCode >= 500:
		return uuid.Nil, apperr.Wrap(apperr.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "identity provider failed")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return uuid.Nil, apperr.Forbidden("session rejected by identity provider")
	}

	var user currentUser
	if err := json.Unmarshal(body, &user); err != nil {
		return uuid.Nil, apperr.Wrap(apperr.CodeDependency, err, "decode identity response")
	}
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return uuid.Nil, apperr.Forbidden("identity provider returned no user")
	}
	return id, nil
}

var _ Verifier = (*Client)(nil)
