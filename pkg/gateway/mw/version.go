package mw

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/vango-go/nava/pkg/core"
)

const (
	apiVersionHeader = "X-Nava-Version"
	// defaultAPIVersion applies when a /v1 request omits the header.
	defaultAPIVersion = "1"
)

// supportedAPIVersions lists the guide API revisions this gateway serves.
// The identify, suggest and verify payloads have a single revision today.
var supportedAPIVersions = map[string]struct{}{
	"1": {},
}

type ctxKeyAPIVersion struct{}

// APIVersionFrom returns the API version negotiated for the request.
func APIVersionFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyAPIVersion{}).(string)
	return v, ok && v != ""
}

// normalizeAPIVersion accepts "1" and "v1" forms.
func normalizeAPIVersion(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	return v
}

// APIVersion rejects /v1 requests that ask for a revision the gateway does
// not serve. Every listed value must be supported. The negotiated version is
// echoed in the response header and recorded for the access log.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldValidateAPIVersion(r) {
			next.ServeHTTP(w, r)
			return
		}

		negotiated := defaultAPIVersion
		for _, raw := range parseHeaderCSVValues(r.Header.Values(apiVersionHeader)) {
			version := normalizeAPIVersion(raw)
			if _, ok := supportedAPIVersions[version]; !ok {
				reqID, _ := RequestIDFrom(r.Context())
				cerr := core.NewInvalidRequestErrorWithParam(
					fmt.Sprintf("unsupported API version %q; supported: %s", raw, strings.Join(supportedAPIVersionList(), ", ")),
					apiVersionHeader)
				cerr.Code = "unsupported_version"
				cerr.RequestID = reqID
				writeJSONError(w, http.StatusBadRequest, cerr)
				return
			}
			negotiated = version
		}

		w.Header().Set(apiVersionHeader, negotiated)
		if info, ok := r.Context().Value(ctxKeyAccess{}).(*accessInfo); ok {
			info.apiVersion = negotiated
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAPIVersion{}, negotiated)))
	})
}

func supportedAPIVersionList() []string {
	out := make([]string, 0, len(supportedAPIVersions))
	for v := range supportedAPIVersions {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func shouldValidateAPIVersion(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return false
	}
	if isWebSocketUpgrade(r) {
		return false
	}
	return isV1Path(r.URL.Path)
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !headerHasToken(r.Header, "Connection", "upgrade") {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func parseHeaderCSVValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			out = append(out, trimmed)
		}
	}
	return out
}
