// Package provision talks to the remote desktop provisioning API that
// backs every space.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/observ"
)

const (
	defaultAppDomain            = "fly.dev"
	responseBodyReadLimit int64 = 1024
)

// Provisioner creates and destroys the remote desktop behind a space.
type Provisioner interface {
	// Create provisions appName protected by password and returns its URL.
	Create(ctx context.Context, appName, password string) (string, error)
	Delete(ctx context.Context, appName string) error
	// AppNameFromURL recovers the app name from a URL returned by Create.
	AppNameFromURL(url string) string
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	appDomain  string
	metrics    *observ.Metrics
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

// WithAppDomain sets the domain apps are served under.
func WithAppDomain(domain string) Option {
	return func(c *Client) {
		if trimmed := strings.Trim(strings.TrimSpace(domain), "."); trimmed != "" {
			c.appDomain = trimmed
		}
	}
}

func WithMetrics(m *observ.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a client for the provisioning API at apiURL. timeout
// bounds every call.
func NewClient(apiURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimSpace(apiURL),
		appDomain:  defaultAppDomain,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type appRequest struct {
	AppName  string `json:"app_name"`
	Password string `json:"password,omitempty"`
}

func (c *Client) Create(ctx context.Context, appName, password string) (string, error) {
	err := c.call(ctx, http.MethodPost, appRequest{AppName: appName, Password: password})
	c.metrics.ProvisionCall("create", err)
	if err != nil {
		return "", err
	}
	return c.URLFor(appName), nil
}

func (c *Client) Delete(ctx context.Context, appName string) error {
	err := c.call(ctx, http.MethodDelete, appRequest{AppName: appName})
	c.metrics.ProvisionCall("delete", err)
	return err
}

// URLFor is the public address of a provisioned app.
func (c *Client) URLFor(appName string) string {
	return "https://" + appName + "." + c.appDomain
}

func (c *Client) AppNameFromURL(url string) string {
	host := strings.TrimPrefix(url, "https://")
	return strings.TrimSuffix(host, "."+c.appDomain)
}

func (c *Client) call(ctx context.Context, method string, body appRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "marshal provision request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "build provision request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeDependency, err, "call provision api")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return apperr.Wrap(apperr.CodeDependency, cause, "provision api rejected request")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Provisioner = (*Client)(nil)
