package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/nava/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFor(&out)
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// StatusFor returns the HTTP status for e.
func StatusFor(e *core.Error) int {
	if e == nil {
		return http.StatusOK
	}
	if e.Type == core.ErrAuth {
		return statusFromAuthCode(e.Code)
	}
	return statusFromType(e.Type)
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest, core.ErrMediaAccess:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return 529
	case core.ErrProvider, core.ErrAPI, core.ErrGateway, core.ErrTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func statusFromAuthCode(code string) int {
	switch code {
	case core.AuthInvalidCredentials, core.AuthSessionExpired:
		return http.StatusUnauthorized
	case core.AuthEmailNotVerified:
		return http.StatusForbidden
	case core.AuthEmailInUse:
		return http.StatusConflict
	case core.AuthWeakPassword, core.AuthInvalidCode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
