package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is satisfied by *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	// DB is nil when identity is disabled.
	DB Pinger
}

type readyResp struct {
	OK       bool     `json:"ok"`
	AuthMode string   `json:"auth_mode"`
	Identity bool     `json:"identity"`
	Draining bool     `json:"draining,omitempty"`
	Issues   []string `json:"issues,omitempty"`
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := readyResp{
		AuthMode: string(h.Config.AuthMode),
		Identity: h.DB != nil,
		Draining: h.Lifecycle.IsDraining(),
	}

	issues := make([]string, 0, 2)
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key missing")
	}
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.DB.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "database unreachable")
		}
	}
	resp.Issues = issues
	resp.OK = len(issues) == 0 && !resp.Draining

	status := http.StatusOK
	switch {
	case resp.Draining:
		status = http.StatusServiceUnavailable
	case len(issues) > 0:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
