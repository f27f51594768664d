package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/nava/pkg/core/ai"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/handlers"
	"github.com/vango-go/nava/pkg/gateway/lifecycle"
	"github.com/vango-go/nava/pkg/gateway/live/sessions"
	"github.com/vango-go/nava/pkg/gateway/metrics"
	"github.com/vango-go/nava/pkg/gateway/mw"
	"github.com/vango-go/nava/pkg/gateway/ratelimit"
)

// Deps are the backends the gateway serves. Nil fields disable the routes
// that need them: those routes still answer, with a JSON error.
type Deps struct {
	AI       ai.Client
	Dialer   live.Dialer
	Identity handlers.Identity
	Profiles handlers.Profiles
	DB       handlers.Pinger

	Metrics      *metrics.Metrics
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	limiter *ratelimit.Limiter
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.LiveSessions == nil {
		deps.LiveSessions = sessions.NewTracker()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                       cfg.LimitRPS,
			Burst:                     cfg.LimitBurst,
			MaxConcurrentRequests:     cfg.LimitMaxConcurrentRequests,
			MaxConcurrentLiveSessions: cfg.LiveMaxSessionsPerPrinc,
		}),
	}

	s.routes()
	return s
}

// Lifecycle is the drain state shared with the process.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.deps.Lifecycle }

// LiveSessions tracks open /v1/live sessions for shutdown.
func (s *Server) LiveSessions() *sessions.Tracker { return s.deps.LiveSessions }

func (s *Server) routes() {
	m := s.deps.Metrics

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.deps.Lifecycle, DB: s.deps.DB})
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}

	aiH := handlers.AIHandler{
		Client:  s.deps.AI,
		Metrics: m,
		Logger:  s.logger,
		Timeout: s.cfg.HandlerTimeout,
	}
	for path, h := range map[string]http.Handler{
		"/v1/identify":    aiH.Identify(),
		"/v1/suggestions": aiH.Suggestions(),
		"/v1/plan":        aiH.Plan(),
		"/v1/verify":      aiH.Verify(),
		"/v1/translate":   aiH.Translate(),
		"/v1/ask":         aiH.Ask(),
		"/v1/transcribe":  aiH.Transcribe(),
	} {
		s.mux.Handle(path, m.Instrument(path, h))
	}

	acct := handlers.AccountHandler{Identity: s.deps.Identity, Profiles: s.deps.Profiles, Logger: s.logger}
	s.mux.Handle("/v1/auth/signup", m.Instrument("/v1/auth/signup", http.HandlerFunc(acct.SignUp)))
	s.mux.Handle("/v1/auth/signin", m.Instrument("/v1/auth/signin", http.HandlerFunc(acct.SignIn)))
	s.mux.Handle("/v1/auth/signout", m.Instrument("/v1/auth/signout", http.HandlerFunc(acct.SignOut)))
	s.mux.Handle("/v1/auth/verify", m.Instrument("/v1/auth/verify", http.HandlerFunc(acct.VerifyEmail)))
	s.mux.Handle("/v1/auth/resend", m.Instrument("/v1/auth/resend", http.HandlerFunc(acct.ResendVerification)))
	s.mux.Handle("/v1/auth/reset", m.Instrument("/v1/auth/reset", http.HandlerFunc(acct.RequestPasswordReset)))
	s.mux.Handle("/v1/auth/reset/confirm", m.Instrument("/v1/auth/reset/confirm", http.HandlerFunc(acct.ResetPassword)))
	s.mux.Handle("/v1/profile", m.Instrument("/v1/profile", http.HandlerFunc(acct.Profile)))
	s.mux.Handle("/v1/history", m.Instrument("/v1/history", http.HandlerFunc(acct.History)))
	s.mux.Handle("/v1/history/{id}/complete", m.Instrument("/v1/history/{id}/complete", http.HandlerFunc(acct.CompleteHistory)))

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Dialer:       s.deps.Dialer,
		Logger:       s.logger,
		Metrics:      m,
		Limiter:      s.limiter,
		Lifecycle:    s.deps.Lifecycle,
		LiveSessions: s.deps.LiveSessions,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.BodyLimit(s.cfg.MaxBodyBytes, h)
	h = mw.RateLimit(s.limiter, s.deps.Metrics, h)
	h = mw.Auth(s.cfg, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
