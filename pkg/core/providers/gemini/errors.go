package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"

	"github.com/vango-go/nava/pkg/core"
)

// mapError converts an SDK failure into a *core.Error. Structured API errors
// keep their category so retries and HTTP status mapping can use it; anything
// else (network, timeout, decode) is a gateway error for op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return core.NewGatewayError(op, err)
	}

	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return &core.Error{
		Type:          errorTypeFor(apiErr.Status, apiErr.Code),
		Message:       msg,
		Code:          apiErr.Status,
		ProviderError: apiErr,
	}
}

func errorTypeFor(status string, code int) core.ErrorType {
	switch code {
	case http.StatusTooManyRequests:
		return core.ErrRateLimit
	case http.StatusServiceUnavailable:
		return core.ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrAuthentication
	}

	switch status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return core.ErrInvalidRequest
	case "UNAUTHENTICATED":
		return core.ErrAuthentication
	case "PERMISSION_DENIED":
		return core.ErrPermission
	case "NOT_FOUND":
		return core.ErrNotFound
	case "RESOURCE_EXHAUSTED":
		return core.ErrRateLimit
	case "INTERNAL":
		return core.ErrAPI
	case "UNAVAILABLE":
		return core.ErrOverloaded
	}
	if code >= 500 {
		return core.ErrAPI
	}
	return core.ErrProvider
}

// retryable wraps non-retryable failures as permanent for backoff.Retry.
func retryable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(core.NewGatewayError(op, err))
	}
	mapped := mapError(op, err)
	var ce *core.Error
	if errors.As(mapped, &ce) && (ce.IsRetryable() || ce.Type == core.ErrGateway) {
		return mapped
	}
	return backoff.Permanent(mapped)
}
