// Package nava is the Go client for the Nava gateway.
//
// Client satisfies ai.Client, so the flow controller and the guide
// orchestrator can run against a gateway instead of holding a Gemini key.
// Accounts, profiles and history go through Client.Accounts; the live
// assistant dials through Client.LiveDialer.
package nava

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/vango-go/nava/pkg/core/ai"
)

// Client talks to a Nava gateway. It is safe for concurrent use.
type Client struct {
	Accounts *AccountsService

	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    func() backoff.BackOff

	mu      sync.RWMutex
	session string
}

var _ ai.Client = (*Client)(nil)

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Accounts = &AccountsService{client: c}
	return c
}

// Session returns the account session token, or "" when signed out.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the account session token, e.g. one restored from disk.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	c.session = strings.TrimSpace(token)
	c.mu.Unlock()
}
