package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/lifecycle"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func readyConfig() config.Config {
	return config.Config{
		AuthMode:     config.AuthModeRequired,
		APIKeys:      map[string]struct{}{"nava_sk_test": {}},
		GeminiAPIKey: "g-test",
	}
}

func TestReadyHandler(t *testing.T) {
	draining := &lifecycle.Lifecycle{}
	draining.StartDraining(time.Now())

	noKeys := readyConfig()
	noKeys.APIKeys = map[string]struct{}{}

	cases := []struct {
		name   string
		h      ReadyHandler
		want   int
		wantOK bool
	}{
		{name: "ready", h: ReadyHandler{Config: readyConfig()}, want: http.StatusOK, wantOK: true},
		{name: "ready with db", h: ReadyHandler{Config: readyConfig(), DB: pingerFunc(func(context.Context) error { return nil })}, want: http.StatusOK, wantOK: true},
		{name: "draining", h: ReadyHandler{Config: readyConfig(), Lifecycle: draining}, want: http.StatusServiceUnavailable},
		{name: "db down", h: ReadyHandler{Config: readyConfig(), DB: pingerFunc(func(context.Context) error { return errors.New("refused") })}, want: http.StatusInternalServerError},
		{name: "required auth without keys", h: ReadyHandler{Config: noKeys}, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
			var resp readyResp
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.OK != tc.wantOK {
				t.Fatalf("ok = %v, want %v", resp.OK, tc.wantOK)
			}
		})
	}
}

func TestHealthAndNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var env struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil || env.Error.Type != "not_found_error" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
