package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vango-go/nava/pkg/core/providers/gemini"
	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/nava/pkg/gateway/server"
	"github.com/vango-go/nava/pkg/identity"
	"github.com/vango-go/nava/pkg/store"
)

// buildBackends connects Gemini and, when a database is configured, the
// account store. The returned cleanup releases the database pool.
func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Deps, func(), error) {
	deps := gatewayserver.Deps{Metrics: metrics.New("nava")}
	cleanup := func() {}

	ai, err := gemini.New(ctx, cfg.GeminiAPIKey,
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithPlanModel(cfg.GeminiPlanModel),
		gemini.WithLiveModel(cfg.GeminiLiveModel),
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithMaxRetries(cfg.AIMaxRetries),
		gemini.WithLogger(logger.With("component", "gemini")),
	)
	if err != nil {
		return deps, cleanup, fmt.Errorf("gemini: %w", err)
	}
	deps.AI = ai
	deps.Dialer = ai.LiveDialer()

	if !cfg.IdentityEnabled() {
		logger.Warn("NAVA_DATABASE_URL is not set; account endpoints are disabled")
		return deps, cleanup, nil
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return deps, cleanup, fmt.Errorf("database: %w", err)
	}
	cleanup = pool.Close

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return deps, cleanup, fmt.Errorf("database: %w", err)
	}

	var mailer identity.Mailer = identity.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = identity.NewSMTPMailer(identity.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("NAVA_SMTP_HOST is not set; one-time codes are logged")
	}

	svc, err := identity.New(identity.Config{
		Repo:       st,
		Mailer:     mailer,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		return deps, cleanup, err
	}
	deps.Identity = svc
	deps.Profiles = st
	deps.DB = st
	return deps, cleanup, nil
}
