package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/nava/pkg/gateway/auth"
	"github.com/vango-go/nava/pkg/gateway/config"
)

func requiredAuthConfig() config.Config {
	return config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"nava_sk_test": {}}}
}

func TestAuth_RequiredRejectsMissingBearer(t *testing.T) {
	h := Auth(requiredAuthConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RejectsUnknownKey(t *testing.T) {
	h := Auth(requiredAuthConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil)
	req.Header.Set("Authorization", "Bearer nava_sk_other")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_AttachesPrincipal(t *testing.T) {
	h := Auth(requiredAuthConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok || p.APIKey != "nava_sk_test" {
			t.Fatalf("principal = %+v, %v", p, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	req.Header.Set("Authorization", "Bearer nava_sk_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_OptionalAndOperationalPathsPassThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	optional := requiredAuthConfig()
	optional.AuthMode = config.AuthModeOptional
	cases := []struct {
		name string
		cfg  config.Config
		path string
	}{
		{"optional", optional, "/v1/identify"},
		{"disabled", config.Config{AuthMode: config.AuthModeDisabled}, "/v1/identify"},
		{"healthz", requiredAuthConfig(), "/healthz"},
		{"metrics", requiredAuthConfig(), "/metrics"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Auth(tc.cfg, next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rr.Code != http.StatusNoContent {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
		})
	}
}
