package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vango-go/nava/internal/dotenv"
	"github.com/vango-go/nava/pkg/gateway/config"
	gatewayserver "github.com/vango-go/nava/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig    func() (config.Config, error)
	buildBackends func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error)
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:    config.LoadFromEnv,
		buildBackends: buildBackends,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

// newLogger builds the process logger. With LogFile set, records also go to
// a rotating JSON file.
func newLogger(cfg config.Config, stderr io.Writer) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.LogFormat == config.LogFormatJSON {
		h = slog.NewJSONHandler(stderr, opts)
	} else {
		h = slog.NewTextHandler(stderr, opts)
	}
	if cfg.LogFile == "" {
		return slog.New(h), nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	return slog.New(teeHandler{h, slog.NewJSONHandler(file, opts)}), file
}

func runGateway(ctx context.Context, cfg config.Config, logger *slog.Logger, deps gatewayDeps) error {
	if deps.buildBackends == nil {
		return errors.New("missing buildBackends dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	backends, cleanup, err := deps.buildBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}
	defer cleanup()

	gw := gatewayserver.New(cfg, logger, backends)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"accounts", backends.Identity != nil,
		"live", backends.Dialer != nil,
	)

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			if ctx.Err() == nil {
				// The listener failed; its error is the one reported.
				return nil
			}
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
		}
		return shutdown(cfg, logger, gw, httpSrv)
	})

	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil {
		logger.Info("gateway stopped")
	}
	return err
}

// shutdown drains: new live sessions are refused, open ones are warned, HTTP
// requests finish, then live sessions get the rest of the grace period.
func shutdown(cfg config.Config, logger *slog.Logger, gw *gatewayserver.Server, httpSrv *http.Server) error {
	gw.Lifecycle().StartDraining(time.Now())
	if n := gw.LiveSessions().WarnAll("draining", "the server is restarting"); n > 0 {
		logger.Info("warned live sessions", "count", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if !gw.LiveSessions().Wait(shutdownCtx) {
		logger.Warn("cancelling live sessions", "count", gw.LiveSessions().Count())
		gw.LiveSessions().CancelAll()
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "nava-gateway: %v\n", err)
		return 1
	}
	if deps.loadConfig == nil {
		fmt.Fprintln(stderr, "nava-gateway: missing loadConfig dependency")
		return 1
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "nava-gateway: load config: %v\n", err)
		return 1
	}

	logger, logFile := newLogger(cfg, stderr)
	defer logFile.Close()

	if err := runGateway(ctx, cfg, logger, deps); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway failed", "error", err)
		fmt.Fprintf(stderr, "nava-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
