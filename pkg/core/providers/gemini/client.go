package gemini

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/ai"
)

// generator is the slice of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client talks to the Gemini API. It is stateless and safe for concurrent use.
type Client struct {
	models generator
	live   liveConnector
	opts   options
	log    *slog.Logger
}

var _ ai.Client = (*Client)(nil)

// New creates a client for the Gemini Developer API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, core.NewAuthenticationError("gemini api key is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions.BaseURL = o.baseURL
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, core.NewGatewayError("client", err)
	}
	return newClient(gc.Models, sdkLive{live: gc.Live}, o), nil
}

func newClient(models generator, live liveConnector, o options) *Client {
	log := o.logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{models: models, live: live, opts: o, log: log}
}

// generate runs one request with retries and returns the response text,
// thought parts excluded.
func (c *Client) generate(ctx context.Context, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	b := backoff.WithMaxRetries(c.opts.backoff(), uint64(c.opts.maxRetries))

	start := time.Now()
	attempts := 0
	var text string
	err := backoff.Retry(func() error {
		attempts++
		resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			c.log.Warn("gemini: attempt failed", "op", op, "attempt", attempts, "error", err)
			return retryable(op, err)
		}
		text = resp.Text()
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if ctx.Err() != nil && !core.IsType(err, core.ErrGateway) {
			err = core.NewGatewayError(op, ctx.Err())
		}
		c.log.Error("gemini: request failed", "op", op, "model", model, "attempts", attempts, "error", err)
		return "", err
	}

	c.log.Debug("gemini: request complete", "op", op, "model", model, "attempts", attempts, "duration", time.Since(start))
	return text, nil
}

func userContent(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
