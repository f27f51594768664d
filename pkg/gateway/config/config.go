package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// Enable only behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Gemini backend.
	GeminiAPIKey    string
	GeminiModel     string
	GeminiPlanModel string
	GeminiLiveModel string
	GeminiBaseURL   string
	AIMaxRetries    int

	// Identity store. Empty disables /v1/auth, /v1/profile and /v1/history.
	DatabaseURL string
	SessionTTL  time.Duration

	// SMTP for one-time codes. Empty host logs codes instead.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Live WebSocket mode (/v1/live).
	LiveMaxMessageBytes     int64
	LiveMaxFramesPerSecond  int
	LiveInboundBurstSeconds int
	LiveMaxSessionDuration  time.Duration
	LiveMaxSessionsPerPrinc int
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveHandshakeTimeout    time.Duration

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Logging
	LogFormat     LogFormat
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("NAVA_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("NAVA_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                    make(map[string]struct{}),
		TrustProxyHeaders:          envBoolOr("NAVA_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:               envInt64Or("NAVA_MAX_BODY_BYTES", 16<<20), // 16 MiB: two photos as data URIs
		CORSAllowedOrigins:         make(map[string]struct{}),
		GeminiAPIKey:               envOr("GEMINI_API_KEY", ""),
		GeminiModel:                envOr("NAVA_GEMINI_MODEL", ""),
		GeminiPlanModel:            envOr("NAVA_GEMINI_PLAN_MODEL", ""),
		GeminiLiveModel:            envOr("NAVA_GEMINI_LIVE_MODEL", ""),
		GeminiBaseURL:              envOr("NAVA_GEMINI_BASE_URL", ""),
		AIMaxRetries:               envIntOr("NAVA_AI_MAX_RETRIES", 3),
		DatabaseURL:                envOr("NAVA_DATABASE_URL", ""),
		SessionTTL:                 envDurationOr("NAVA_SESSION_TTL", 30*24*time.Hour),
		SMTPHost:                   envOr("NAVA_SMTP_HOST", ""),
		SMTPPort:                   envIntOr("NAVA_SMTP_PORT", 587),
		SMTPUsername:               envOr("NAVA_SMTP_USERNAME", ""),
		SMTPPassword:               envOr("NAVA_SMTP_PASSWORD", ""),
		SMTPFrom:                   envOr("NAVA_SMTP_FROM", ""),
		LiveMaxMessageBytes:        envInt64Or("NAVA_LIVE_MAX_MESSAGE_BYTES", 512*1024),
		LiveMaxFramesPerSecond:     envIntOr("NAVA_LIVE_MAX_FPS", 60),
		LiveInboundBurstSeconds:    envIntOr("NAVA_LIVE_INBOUND_BURST_SECONDS", 2),
		LiveMaxSessionDuration:     envDurationOr("NAVA_LIVE_MAX_DURATION", 30*time.Minute),
		LiveMaxSessionsPerPrinc:    envIntOr("NAVA_LIVE_MAX_SESSIONS_PER_PRINCIPAL", 2),
		LiveWSPingInterval:         envDurationOr("NAVA_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:         envDurationOr("NAVA_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:       envDurationOr("NAVA_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LimitRPS:                   envFloat64Or("NAVA_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                 envIntOr("NAVA_RATE_LIMIT_BURST", 6),
		LimitMaxConcurrentRequests: envIntOr("NAVA_MAX_CONCURRENT_REQUESTS", 8),
		ReadHeaderTimeout:          envDurationOr("NAVA_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("NAVA_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             envDurationOr("NAVA_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:        envDurationOr("NAVA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		LogFormat:                  LogFormat(strings.ToLower(envOr("NAVA_LOG_FORMAT", string(LogFormatText)))),
		LogLevel:                   envOr("NAVA_LOG_LEVEL", "info"),
		LogFile:                    envOr("NAVA_LOG_FILE", ""),
		LogMaxSizeMB:               envIntOr("NAVA_LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:              envIntOr("NAVA_LOG_MAX_BACKUPS", 5),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("NAVA_AUTH_MODE must be one of required|optional|disabled")
	}
	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("NAVA_LOG_FORMAT must be one of text|json")
	}

	for _, key := range splitCSV(os.Getenv("NAVA_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("NAVA_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("NAVA_MAX_BODY_BYTES must be > 0")
	}
	if cfg.AIMaxRetries < 0 {
		return Config{}, fmt.Errorf("NAVA_AI_MAX_RETRIES must be >= 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("NAVA_SESSION_TTL must be > 0")
	}
	if cfg.SMTPHost != "" {
		if cfg.SMTPPort <= 0 {
			return Config{}, fmt.Errorf("NAVA_SMTP_PORT must be > 0")
		}
		if cfg.SMTPFrom == "" {
			return Config{}, fmt.Errorf("NAVA_SMTP_FROM must be set when NAVA_SMTP_HOST is set")
		}
	}
	if cfg.LiveMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxFramesPerSecond < 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_MAX_FPS must be >= 0")
	}
	if cfg.LiveMaxFramesPerSecond > 0 && cfg.LiveInboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("NAVA_LIVE_INBOUND_BURST_SECONDS must be >= 1 when NAVA_LIVE_MAX_FPS is set")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveMaxSessionsPerPrinc <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("NAVA_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("NAVA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("NAVA_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("NAVA_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("NAVA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("NAVA_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("NAVA_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("NAVA_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LogFile != "" && (cfg.LogMaxSizeMB <= 0 || cfg.LogMaxBackups < 0) {
		return Config{}, fmt.Errorf("NAVA_LOG_MAX_SIZE_MB must be > 0 and NAVA_LOG_MAX_BACKUPS >= 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("NAVA_API_KEYS must be set when NAVA_AUTH_MODE=required")
	}

	return cfg, nil
}

// IdentityEnabled reports whether the account endpoints are served.
func (c Config) IdentityEnabled() bool {
	return c.DatabaseURL != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
