package mw

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIVersion_NoHeaderDefaultsToV1(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAPIVersion_SupportedHeaderAccepted(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, defaultAPIVersion)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAPIVersion_WhitespaceAndDuplicatesAccepted(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Add(apiVersionHeader, " 1 ")
	req.Header.Add(apiVersionHeader, "1, 1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAPIVersion_UnsupportedVersionRejected(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_abc123"))
	req.Header.Set(apiVersionHeader, "2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"type":"invalid_request_error"`) {
		t.Fatalf("missing invalid_request_error type: %q", body)
	}
	if !strings.Contains(body, `"code":"unsupported_version"`) {
		t.Fatalf("missing unsupported_version code: %q", body)
	}
	if !strings.Contains(body, `"param":"X-Nava-Version"`) {
		t.Fatalf("missing X-Nava-Version param: %q", body)
	}
	if !strings.Contains(body, `"request_id":"req_abc123"`) {
		t.Fatalf("missing request_id: %q", body)
	}
}

func TestAPIVersion_MixedVersionsRejected(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "1,2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"code":"unsupported_version"`) {
		t.Fatalf("missing unsupported_version code: %q", rr.Body.String())
	}
}

func TestAPIVersion_PrefixedFormAcceptedAndEchoed(t *testing.T) {
	var got string
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = APIVersionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "v1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got != "1" {
		t.Fatalf("negotiated=%q", got)
	}
	if v := rr.Header().Get(apiVersionHeader); v != "1" {
		t.Fatalf("%s=%q", apiVersionHeader, v)
	}
}

func TestAPIVersion_DefaultEchoedWithoutHeader(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/suggest", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if v := rr.Header().Get(apiVersionHeader); v != defaultAPIVersion {
		t.Fatalf("%s=%q", apiVersionHeader, v)
	}
}

func TestAPIVersion_RejectionListsSupportedVersions(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil)
	req.Header.Set(apiVersionHeader, "2024-01-01")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "supported: 1") {
		t.Fatalf("missing supported list: %q", rr.Body.String())
	}
	if v := rr.Header().Get(apiVersionHeader); v != "" {
		t.Fatalf("rejected request echoed %s=%q", apiVersionHeader, v)
	}
}

func TestAPIVersion_RecordedInAccessLog(t *testing.T) {
	loggerOut := &bytes.Buffer{}
	h := AccessLog(newTestLogger(loggerOut), APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "V1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := parseSingleLogRecord(t, loggerOut)
	if got := rec["api_version"]; got != "1" {
		t.Fatalf("api_version=%v", got)
	}
}

func TestAPIVersion_NonAPIV1PathBypass(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAPIVersion_WebSocketUpgradeBypass(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "2")
	req.Header.Set("Connection", "keep-alive, Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAPIVersion_OptionsBypass(t *testing.T) {
	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/identify", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	req.Header.Set(apiVersionHeader, "2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
