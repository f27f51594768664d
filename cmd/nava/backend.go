package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/providers/gemini"
	nava "github.com/vango-go/nava/sdk"
)

// backend is where AI requests and live sessions go.
type backend struct {
	ai     ai.Client
	dialer live.Dialer
	// gateway is set when talking to a Nava gateway; accounts and remote
	// history need it.
	gateway *nava.Client
}

var errNoBackend = errors.New("no backend configured: set --gateway (NAVA_GATEWAY_URL) or --gemini-key (GEMINI_API_KEY)")

// connect prefers the gateway and falls back to calling Gemini directly.
func connect(ctx context.Context, opts options, log *slog.Logger) (*backend, error) {
	switch {
	case opts.gateway != "":
		c := nava.NewClient(opts.gateway, nava.WithAPIKey(opts.apiKey), nava.WithLogger(log))
		return &backend{ai: c, dialer: c.LiveDialer(), gateway: c}, nil
	case opts.geminiKey != "":
		g, err := gemini.New(ctx, opts.geminiKey, gemini.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return &backend{ai: g, dialer: g.LiveDialer()}, nil
	}
	return nil, errNoBackend
}

// requireGateway is for commands that only make sense against a gateway.
func (b *backend) requireGateway() (*nava.Client, error) {
	if b.gateway == nil {
		return nil, errors.New("accounts need a gateway: set --gateway (NAVA_GATEWAY_URL)")
	}
	return b.gateway, nil
}
