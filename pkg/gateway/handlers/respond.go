package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
	"github.com/vango-go/nava/pkg/gateway/apierror"
	"github.com/vango-go/nava/pkg/gateway/mw"
)

func requestIDFromContext(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

// writeError maps err onto the canonical envelope and status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestIDFromContext(r)
	coreErr, status := apierror.FromError(err, reqID)
	writeCoreErrorJSON(w, reqID, coreErr, status)
}

// allowMethod writes 405 and returns false when r does not use method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeCoreErrorJSON(w, requestIDFromContext(r), &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: "method not allowed",
		Code:    "method_not_allowed",
	}, http.StatusMethodNotAllowed)
	return false
}

// decodeBody reads and strictly decodes the request body. On failure it has
// already written the error response.
func decodeBody[T any, PT interface {
	*T
	types.Validator
}](w http.ResponseWriter, r *http.Request) (*T, bool) {
	reqID := requestIDFromContext(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("request body too large"), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read request body"), http.StatusBadRequest)
		return nil, false
	}
	v, err := types.DecodeStrict[T, PT](body)
	if err != nil {
		var se *types.StrictDecodeError
		if errors.As(err, &se) {
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam(se.Message, se.Param), http.StatusBadRequest)
			return nil, false
		}
		writeError(w, r, err)
		return nil, false
	}
	return v, true
}
