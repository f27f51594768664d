package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"NAVA_ADDR",
	"NAVA_AUTH_MODE",
	"NAVA_API_KEYS",
	"NAVA_TRUST_PROXY_HEADERS",
	"NAVA_CORS_ORIGINS",
	"NAVA_MAX_BODY_BYTES",
	"GEMINI_API_KEY",
	"NAVA_GEMINI_MODEL",
	"NAVA_GEMINI_PLAN_MODEL",
	"NAVA_GEMINI_LIVE_MODEL",
	"NAVA_GEMINI_BASE_URL",
	"NAVA_AI_MAX_RETRIES",
	"NAVA_DATABASE_URL",
	"NAVA_SESSION_TTL",
	"NAVA_SMTP_HOST",
	"NAVA_SMTP_PORT",
	"NAVA_SMTP_USERNAME",
	"NAVA_SMTP_PASSWORD",
	"NAVA_SMTP_FROM",
	"NAVA_LIVE_MAX_MESSAGE_BYTES",
	"NAVA_LIVE_MAX_FPS",
	"NAVA_LIVE_INBOUND_BURST_SECONDS",
	"NAVA_LIVE_MAX_DURATION",
	"NAVA_LIVE_MAX_SESSIONS_PER_PRINCIPAL",
	"NAVA_LIVE_WS_PING_INTERVAL",
	"NAVA_LIVE_WS_WRITE_TIMEOUT",
	"NAVA_LIVE_HANDSHAKE_TIMEOUT",
	"NAVA_RATE_LIMIT_RPS",
	"NAVA_RATE_LIMIT_BURST",
	"NAVA_MAX_CONCURRENT_REQUESTS",
	"NAVA_READ_HEADER_TIMEOUT",
	"NAVA_READ_TIMEOUT",
	"NAVA_TOTAL_REQUEST_TIMEOUT",
	"NAVA_SHUTDOWN_GRACE_PERIOD",
	"NAVA_LOG_FORMAT",
	"NAVA_LOG_LEVEL",
	"NAVA_LOG_FILE",
	"NAVA_LOG_MAX_SIZE_MB",
	"NAVA_LOG_MAX_BACKUPS",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func minimalEnv(t *testing.T) {
	t.Helper()
	clearGatewayEnv(t)
	t.Setenv("NAVA_API_KEYS", "nava_sk_test")
	t.Setenv("GEMINI_API_KEY", "gk")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if _, ok := cfg.APIKeys["nava_sk_test"]; !ok || len(cfg.APIKeys) != 1 {
		t.Fatalf("APIKeys = %v", cfg.APIKeys)
	}
	if cfg.MaxBodyBytes != 16<<20 {
		t.Fatalf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, int64(16<<20))
	}
	if cfg.AIMaxRetries != 3 {
		t.Fatalf("AIMaxRetries = %d, want 3", cfg.AIMaxRetries)
	}
	if cfg.IdentityEnabled() {
		t.Fatalf("IdentityEnabled() = true without NAVA_DATABASE_URL")
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.LiveMaxMessageBytes != 512*1024 {
		t.Fatalf("LiveMaxMessageBytes = %d", cfg.LiveMaxMessageBytes)
	}
	if cfg.LiveMaxFramesPerSecond != 60 {
		t.Fatalf("LiveMaxFramesPerSecond = %d, want 60", cfg.LiveMaxFramesPerSecond)
	}
	if cfg.LiveMaxSessionDuration != 30*time.Minute {
		t.Fatalf("LiveMaxSessionDuration = %v, want 30m", cfg.LiveMaxSessionDuration)
	}
	if cfg.LiveMaxSessionsPerPrinc != 2 {
		t.Fatalf("LiveMaxSessionsPerPrinc = %d, want 2", cfg.LiveMaxSessionsPerPrinc)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Fatalf("LiveHandshakeTimeout = %v, want 5s", cfg.LiveHandshakeTimeout)
	}
	if cfg.LimitRPS != 2.0 || cfg.LimitBurst != 6 || cfg.LimitMaxConcurrentRequests != 8 {
		t.Fatalf("limits = %v/%d/%d", cfg.LimitRPS, cfg.LimitBurst, cfg.LimitMaxConcurrentRequests)
	}
	if cfg.HandlerTimeout != 2*time.Minute {
		t.Fatalf("HandlerTimeout = %v, want 2m", cfg.HandlerTimeout)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("LogFormat = %q, want text", cfg.LogFormat)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	minimalEnv(t)
	t.Setenv("NAVA_ADDR", ":9090")
	t.Setenv("NAVA_AUTH_MODE", "optional")
	t.Setenv("NAVA_API_KEYS", "k1, k2,")
	t.Setenv("NAVA_CORS_ORIGINS", "https://app.example.com")
	t.Setenv("NAVA_DATABASE_URL", "postgres://localhost/nava")
	t.Setenv("NAVA_SMTP_HOST", "smtp.example.com")
	t.Setenv("NAVA_SMTP_FROM", "Nava <no-reply@example.com>")
	t.Setenv("NAVA_LIVE_MAX_FPS", "30")
	t.Setenv("NAVA_LOG_FORMAT", "JSON")
	t.Setenv("NAVA_SHUTDOWN_GRACE_PERIOD", "5s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" || cfg.AuthMode != AuthModeOptional {
		t.Fatalf("Addr/AuthMode = %q/%q", cfg.Addr, cfg.AuthMode)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys = %v", cfg.APIKeys)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.IdentityEnabled() || cfg.SMTPPort != 587 {
		t.Fatalf("identity = %v, smtp port = %d", cfg.IdentityEnabled(), cfg.SMTPPort)
	}
	if cfg.LiveMaxFramesPerSecond != 30 {
		t.Fatalf("LiveMaxFramesPerSecond = %d", cfg.LiveMaxFramesPerSecond)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.ShutdownGracePeriod != 5*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_InvalidNumbersFallBack(t *testing.T) {
	minimalEnv(t)
	t.Setenv("NAVA_RATE_LIMIT_RPS", "fast")
	t.Setenv("NAVA_LIVE_HANDSHAKE_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LimitRPS != 2.0 || cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Fatalf("fallbacks = %v / %v", cfg.LimitRPS, cfg.LiveHandshakeTimeout)
	}
}

func TestLoadFromEnv_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"auth mode", map[string]string{"NAVA_AUTH_MODE": "sometimes"}, "NAVA_AUTH_MODE"},
		{"required without keys", map[string]string{"NAVA_API_KEYS": ""}, "NAVA_API_KEYS"},
		{"missing gemini key", map[string]string{"GEMINI_API_KEY": ""}, "GEMINI_API_KEY"},
		{"log format", map[string]string{"NAVA_LOG_FORMAT": "xml"}, "NAVA_LOG_FORMAT"},
		{"body bytes", map[string]string{"NAVA_MAX_BODY_BYTES": "0"}, "NAVA_MAX_BODY_BYTES"},
		{"smtp from", map[string]string{"NAVA_SMTP_HOST": "smtp.example.com"}, "NAVA_SMTP_FROM"},
		{"live sessions", map[string]string{"NAVA_LIVE_MAX_SESSIONS_PER_PRINCIPAL": "0"}, "NAVA_LIVE_MAX_SESSIONS_PER_PRINCIPAL"},
		{"burst", map[string]string{"NAVA_LIVE_INBOUND_BURST_SECONDS": "0"}, "NAVA_LIVE_INBOUND_BURST_SECONDS"},
		{"negative rps", map[string]string{"NAVA_RATE_LIMIT_RPS": "-1"}, "NAVA_RATE_LIMIT_RPS"},
		{"grace", map[string]string{"NAVA_SHUTDOWN_GRACE_PERIOD": "-1s"}, "NAVA_SHUTDOWN_GRACE_PERIOD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			minimalEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want mention of %s", tc.wantMsg)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error = %q, want mention of %s", err, tc.wantMsg)
			}
		})
	}
}

func TestLoadFromEnv_DisabledAuthNeedsNoKeys(t *testing.T) {
	minimalEnv(t)
	t.Setenv("NAVA_AUTH_MODE", "disabled")
	t.Setenv("NAVA_API_KEYS", "")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
}
