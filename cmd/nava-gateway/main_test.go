package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vango-go/nava/pkg/gateway/config"
	gatewayserver "github.com/vango-go/nava/pkg/gateway/server"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                    "127.0.0.1:0",
		AuthMode:                config.AuthModeDisabled,
		APIKeys:                 map[string]struct{}{},
		CORSAllowedOrigins:      map[string]struct{}{},
		MaxBodyBytes:            1 << 20,
		LiveMaxSessionsPerPrinc: 1,
		ReadHeaderTimeout:       time.Second,
		ReadTimeout:             time.Second,
		HandlerTimeout:          time.Second,
		ShutdownGracePeriod:     time.Second,
		LogFormat:               config.LogFormatText,
		LogLevel:                "info",
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error) {
			t.Fatalf("buildBackends should not be called when config load fails")
			return gatewayserver.Deps{}, nil, nil
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunGateway_BackendFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runGateway(context.Background(), testConfig(), logger, gatewayDeps{
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error) {
			return gatewayserver.Deps{}, func() {}, errors.New("no database")
		},
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	})
	if err == nil || !strings.Contains(err.Error(), "no database") {
		t.Fatalf("runGateway() error = %v", err)
	}
}

func TestRunGateway_SignalDrainsAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sigs := make(chan chan<- os.Signal, 1)
	cleaned := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- runGateway(context.Background(), testConfig(), logger, gatewayDeps{
			buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error) {
				return gatewayserver.Deps{}, func() { close(cleaned) }, nil
			},
			signalNotify: func(c chan<- os.Signal, _ ...os.Signal) { sigs <- c },
			signalStop:   func(chan<- os.Signal) {},
		})
	}()

	select {
	case c := <-sigs:
		c <- syscall.SIGTERM
	case <-time.After(2 * time.Second):
		t.Fatalf("signal channel never registered")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runGateway() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("gateway did not stop")
	}
	select {
	case <-cleaned:
	default:
		t.Fatalf("backend cleanup not called")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:9999"
	cfg.ReadTimeout = 3 * time.Second

	srv := buildHTTPServer(cfg, http.NotFoundHandler())
	if srv.Addr != cfg.Addr || srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout || srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("server = %+v", srv)
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	cfg := testConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "gateway.log")
	cfg.LogMaxSizeMB = 1
	cfg.LogLevel = "warn"

	var stderr bytes.Buffer
	logger, closer := newLogger(cfg, &stderr)
	logger.Info("hidden")
	logger.With("component", "test").Warn("disk almost full", "free_mb", 12)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"disk almost full"`) || !strings.Contains(line, `"component":"test"`) {
		t.Fatalf("log file = %s", line)
	}
	if strings.Contains(line, "hidden") || strings.Contains(stderr.String(), "hidden") {
		t.Fatalf("info record written at warn level")
	}
	if !strings.Contains(stderr.String(), "disk almost full") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
