package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/lifecycle"
	"github.com/vango-go/nava/pkg/gateway/live/sessions"
	"github.com/vango-go/nava/pkg/gateway/metrics"
	"github.com/vango-go/nava/pkg/gateway/ratelimit"
)

func TestLiveHandler_HandshakeUnsupportedVersion(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{})
	conn := h.dial(t)

	mustWriteJSON(t, conn, baseHello("2"))
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "unsupported" || msg["close"] != true {
		t.Fatalf("msg = %v, want closing unsupported error", msg)
	}
	if h.dialer.calls() != 0 {
		t.Fatalf("backend dialed for a rejected hello")
	}
}

func TestLiveHandler_FirstFrameMustBeHello(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{})
	conn := h.dial(t)

	mustWriteJSON(t, conn, map[string]any{"type": "audio", "data": "AAA="})
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "bad_request" {
		t.Fatalf("msg = %v, want bad_request", msg)
	}
}

func TestLiveHandler_BridgesAudioBothWays(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{})
	conn := h.dial(t)

	mustWriteJSON(t, conn, baseHello("1"))
	ack := mustReadJSON(t, conn, 2*time.Second)
	if ack["type"] != "hello_ack" || !strings.HasPrefix(ack["session_id"].(string), "s_") {
		t.Fatalf("ack = %v", ack)
	}
	limits := ack["limits"].(map[string]any)
	if limits["max_message_bytes"] != float64(64*1024) {
		t.Fatalf("limits = %v", limits)
	}

	stream := h.dialer.lastStream(t)
	if got := stream.lc.StepTitle; got != "Cut" {
		t.Fatalf("dial context step = %q, want Cut", got)
	}

	mustWriteJSON(t, conn, map[string]any{"type": "audio", "data": "AAABAA=="})
	waitUntil(t, "upstream audio", func() bool { return stream.sentCount() == 1 })

	stream.inbound <- live.AudioMessage{PCM: []byte{1, 0}, SampleRate: 24000}
	audio := mustReadJSON(t, conn, 2*time.Second)
	if audio["type"] != "audio" || audio["data"] != "AQA=" || audio["sample_rate_hz"] != float64(24000) {
		t.Fatalf("audio = %v", audio)
	}

	mustWriteJSON(t, conn, map[string]any{"type": "close"})
	closing := mustReadJSON(t, conn, 2*time.Second)
	if closing["type"] != "close" || closing["reason"] != "client_close" {
		t.Fatalf("close = %v", closing)
	}
	waitUntil(t, "tracker empty", func() bool { return h.tracker.Count() == 0 })
}

func TestLiveHandler_SessionCap(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{maxSessions: 1})

	first := h.dial(t)
	mustWriteJSON(t, first, baseHello("1"))
	if msg := mustReadJSON(t, first, 2*time.Second); msg["type"] != "hello_ack" {
		t.Fatalf("first session = %v", msg)
	}

	second := h.dial(t)
	mustWriteJSON(t, second, baseHello("1"))
	msg := mustReadJSON(t, second, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "rate_limited" {
		t.Fatalf("second session = %v, want rate_limited", msg)
	}
}

func TestLiveHandler_DialFailure(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{dialErr: errors.New("no route")})
	conn := h.dial(t)

	mustWriteJSON(t, conn, baseHello("1"))
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || msg["code"] != "upstream_unavailable" {
		t.Fatalf("msg = %v", msg)
	}
}

func TestLiveHandler_TrackerCancelAllClosesSession(t *testing.T) {
	h := newLiveHarness(t, liveTestOptions{})
	conn := h.dial(t)
	mustWriteJSON(t, conn, baseHello("1"))
	mustReadJSON(t, conn, 2*time.Second)
	waitUntil(t, "registered", func() bool { return h.tracker.Count() == 1 })

	if sent := h.tracker.WarnAll("draining", "server restarting"); sent != 1 {
		t.Fatalf("WarnAll = %d, want 1", sent)
	}
	if warn := mustReadJSON(t, conn, 2*time.Second); warn["type"] != "warning" || warn["code"] != "draining" {
		t.Fatalf("warning = %v", warn)
	}

	h.tracker.CancelAll()
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "close" || msg["reason"] != "shutdown" {
		t.Fatalf("msg = %v, want close/shutdown", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !h.tracker.Wait(ctx) {
		t.Fatalf("session did not unregister")
	}
}

func TestLiveHandler_RejectsBeforeUpgrade(t *testing.T) {
	cases := []struct {
		name   string
		drain  bool
		origin string
		want   int
	}{
		{name: "draining", drain: true, want: 529},
		{name: "foreign origin", origin: "https://evil.example", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lc := &lifecycle.Lifecycle{}
			if tc.drain {
				lc.StartDraining(time.Now())
			}
			h := LiveHandler{Config: liveTestConfig(1), Dialer: &fakeDialer{}, Lifecycle: lc}
			req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

type liveTestOptions struct {
	maxSessions int
	dialErr     error
}

type liveHarness struct {
	url     string
	dialer  *fakeDialer
	tracker *sessions.Tracker
}

func liveTestConfig(maxSessions int) config.Config {
	return config.Config{
		AuthMode:                config.AuthModeDisabled,
		APIKeys:                 map[string]struct{}{},
		CORSAllowedOrigins:      map[string]struct{}{},
		LiveMaxMessageBytes:     64 * 1024,
		LiveMaxFramesPerSecond:  100,
		LiveInboundBurstSeconds: 2,
		LiveMaxSessionDuration:  30 * time.Second,
		LiveMaxSessionsPerPrinc: maxSessions,
		LiveWSPingInterval:      5 * time.Second,
		LiveWSWriteTimeout:      2 * time.Second,
		LiveHandshakeTimeout:    2 * time.Second,
	}
}

func newLiveHarness(t *testing.T, opts liveTestOptions) *liveHarness {
	t.Helper()
	if opts.maxSessions <= 0 {
		opts.maxSessions = 2
	}
	dialer := &fakeDialer{err: opts.dialErr}
	tracker := sessions.NewTracker()
	handler := LiveHandler{
		Config:       liveTestConfig(opts.maxSessions),
		Dialer:       dialer,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:      metrics.New("test"),
		Limiter:      ratelimit.New(ratelimit.Config{MaxConcurrentLiveSessions: opts.maxSessions}),
		Lifecycle:    &lifecycle.Lifecycle{},
		LiveSessions: tracker,
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		tracker.CancelAll()
		srv.Close()
	})
	return &liveHarness{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		dialer:  dialer,
		tracker: tracker,
	}
}

func (h *liveHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func baseHello(version string) map[string]any {
	return map[string]any{
		"type":             "hello",
		"protocol_version": version,
		"context": map[string]any{
			"project_goal":     "Pencil holder",
			"step_title":       "Cut",
			"step_instruction": "Cut the top off the bottle.",
		},
		"audio_in":  map[string]any{"encoding": "pcm_s16le", "sample_rate_hz": 16000, "channels": 1},
		"audio_out": map[string]any{"encoding": "pcm_s16le", "sample_rate_hz": 24000, "channels": 1},
	}
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeDialer struct {
	err error

	mu      sync.Mutex
	streams []*fakeLiveStream
}

func (d *fakeDialer) Dial(_ context.Context, lc live.Context) (live.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeLiveStream{lc: lc, inbound: make(chan live.Inbound, 8), closed: make(chan struct{})}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *fakeDialer) lastStream(t *testing.T) *fakeLiveStream {
	t.Helper()
	waitUntil(t, "backend dial", func() bool { return d.calls() > 0 })
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type fakeLiveStream struct {
	lc live.Context

	mu   sync.Mutex
	sent []live.Outbound

	inbound   chan live.Inbound
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *fakeLiveStream) Send(msg live.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeLiveStream) Recv() (live.Inbound, error) {
	select {
	case m := <-s.inbound:
		return m, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeLiveStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeLiveStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
