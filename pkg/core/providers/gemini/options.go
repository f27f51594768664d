// Package gemini implements the AI client and the live transport on the
// Google Gen AI SDK.
package gemini

import (
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultModel      = "gemini-3-flash-preview"
	DefaultPlanModel  = "gemini-3-pro-preview"
	DefaultLiveModel  = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultMaxRetries = 3

	// PlanThinkingBudget is the token budget the plan model may spend reasoning
	// about physical constraints before answering.
	PlanThinkingBudget = 2048
)

// Option configures the Client.
type Option func(*options)

type options struct {
	model      string
	planModel  string
	liveModel  string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	backoff    func() backoff.BackOff
}

func defaultOptions() options {
	return options{
		model:      DefaultModel,
		planModel:  DefaultPlanModel,
		liveModel:  DefaultLiveModel,
		maxRetries: DefaultMaxRetries,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// WithModel sets the model used for identify, suggestions, verify, translate,
// ask and transcribe.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithPlanModel sets the model used for build plans.
func WithPlanModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.planModel = model
		}
	}
}

// WithLiveModel sets the native-audio model used by the live dialer.
func WithLiveModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.liveModel = model
		}
	}
}

// WithBaseURL overrides the API endpoint.
// Default: https://generativelanguage.googleapis.com/
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithMaxRetries bounds retries of retryable failures. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func withBackOff(f func() backoff.BackOff) Option {
	return func(o *options) {
		o.backoff = f
	}
}
