package openapi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/gateway/live/session"
)

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	spec := mustReadOpenAPI(t)
	paths := mustExtractSection(t, spec, "\npaths:\n", "\ncomponents:\n")
	for _, route := range []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/v1/identify",
		"/v1/suggestions",
		"/v1/plan",
		"/v1/verify",
		"/v1/translate",
		"/v1/ask",
		"/v1/transcribe",
		"/v1/auth/signup",
		"/v1/auth/signin",
		"/v1/auth/signout",
		"/v1/auth/verify",
		"/v1/auth/resend",
		"/v1/auth/reset",
		"/v1/auth/reset/confirm",
		"/v1/profile",
		"/v1/history",
		"/v1/history/{id}/complete",
		"/v1/live",
	} {
		if !strings.Contains(paths, "\n  "+route+":\n") {
			t.Fatalf("paths missing %s", route)
		}
	}
}

func TestOpenAPI_ErrorTypesMatchCore(t *testing.T) {
	spec := mustReadOpenAPI(t)
	errorTypes := mustExtractSection(t, spec, "\n    ErrorType:\n", "\n\n    AuthErrorCode:\n")
	for _, typ := range []core.ErrorType{
		core.ErrInvalidRequest,
		core.ErrAuthentication,
		core.ErrPermission,
		core.ErrNotFound,
		core.ErrRateLimit,
		core.ErrAPI,
		core.ErrOverloaded,
		core.ErrProvider,
		core.ErrMediaAccess,
		core.ErrTransport,
		core.ErrGateway,
		core.ErrAuth,
	} {
		if !hasListItem(errorTypes, string(typ)) {
			t.Fatalf("ErrorType enum missing %q", typ)
		}
	}

	authCodes := mustExtractSection(t, spec, "\n    AuthErrorCode:\n", "\n\n    Readiness:\n")
	for _, code := range []string{
		core.AuthInvalidCredentials,
		core.AuthEmailNotVerified,
		core.AuthEmailInUse,
		core.AuthWeakPassword,
		core.AuthInvalidCode,
		core.AuthSessionExpired,
		core.AuthConfig,
	} {
		if !hasListItem(authCodes, code) {
			t.Fatalf("AuthErrorCode enum missing %q", code)
		}
	}
}

func TestOpenAPI_LiveFramesAreDiscriminated(t *testing.T) {
	spec := mustReadOpenAPI(t)

	client := mustExtractSection(t, spec, "\n    LiveClientMessage:\n", "\n\n    LiveServerMessage:\n")
	for _, typ := range []string{"hello", "audio", "video", "close"} {
		if !strings.Contains(client, "\n          "+typ+": ") {
			t.Fatalf("LiveClientMessage mapping missing %q", typ)
		}
	}

	server := mustExtractSection(t, spec, "\n    LiveServerMessage:\n", "\n\n    LiveAudioFormat:\n")
	for _, typ := range []string{"hello_ack", "audio", "error", "warning", "close"} {
		if !strings.Contains(server, "\n          "+typ+": ") {
			t.Fatalf("LiveServerMessage mapping missing %q", typ)
		}
	}

	idx := strings.Index(spec, "\n    LiveServerClose:\n")
	if idx < 0 {
		t.Fatalf("missing LiveServerClose schema")
	}
	closing := spec[idx:]
	for _, reason := range []string{
		session.ReasonClientClose,
		session.ReasonClientGone,
		session.ReasonUpstreamClose,
		session.ReasonUpstreamError,
		session.ReasonMaxDuration,
		session.ReasonShutdown,
		session.ReasonWriteFailed,
	} {
		if !hasListItem(closing, reason) {
			t.Fatalf("LiveServerClose.reason missing %q", reason)
		}
	}
}

// hasListItem reports whether section has a YAML list line "- item".
func hasListItem(section, item string) bool {
	for _, line := range strings.Split(section, "\n") {
		if strings.TrimSpace(line) == "- "+item {
			return true
		}
	}
	return false
}

func mustReadOpenAPI(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(mustFindOpenAPIPath(t))
	if err != nil {
		t.Fatalf("read openapi: %v", err)
	}
	return string(raw)
}

func mustFindOpenAPIPath(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for i := 0; i < 20; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatalf("could not locate api/openapi.yaml from cwd")
	return ""
}

func mustExtractSection(t *testing.T, spec, startMarker, endMarker string) string {
	t.Helper()
	start := strings.Index(spec, startMarker)
	if start < 0 {
		t.Fatalf("missing start marker %q", startMarker)
	}
	start += len(startMarker) - 1

	rest := spec[start:]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		t.Fatalf("missing end marker %q (start=%q)", endMarker, startMarker)
	}
	return rest[:end]
}
