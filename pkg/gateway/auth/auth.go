package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionHeader carries an account session token. Authorization is reserved
// for the gateway API key.
const SessionHeader = "X-Nava-Session"

type Principal struct {
	APIKey string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// ParseSession returns the account session token, if any.
func ParseSession(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(SessionHeader))
	return token, token != ""
}
