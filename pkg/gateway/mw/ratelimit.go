package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/gateway/auth"
	"github.com/vango-go/nava/pkg/gateway/metrics"
	"github.com/vango-go/nava/pkg/gateway/ratelimit"
)

// PrincipalKey is the limiter key for r: a hash of its API key, or
// "anonymous".
func PrincipalKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return ratelimit.PrincipalKeyFromAPIKey(p.APIKey)
	}
	return "anonymous"
}

func RateLimit(limiter *ratelimit.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Operational endpoints must remain cheap and reliable.
		if isOperationalPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AcquireRequest(PrincipalKey(r), time.Now())
		if !dec.Allowed {
			m.RecordRateLimitHit("request")
			reqID, _ := RequestIDFrom(r.Context())
			cerr := core.NewRateLimitError("rate limit exceeded", dec.RetryAfter)
			cerr.RequestID = reqID
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			writeJSONError(w, http.StatusTooManyRequests, cerr)
			return
		}
		if isWebSocketUpgrade(r) {
			// Live sessions are capped by AcquireLiveSession instead.
			dec.Permit.Release()
		} else {
			defer dec.Permit.Release()
		}

		next.ServeHTTP(w, r)
	})
}
