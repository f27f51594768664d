package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/gateway/config"
	"github.com/vango-go/nava/pkg/gateway/lifecycle"
	"github.com/vango-go/nava/pkg/gateway/live/protocol"
	"github.com/vango-go/nava/pkg/gateway/live/session"
	"github.com/vango-go/nava/pkg/gateway/live/sessions"
	"github.com/vango-go/nava/pkg/gateway/metrics"
	"github.com/vango-go/nava/pkg/gateway/mw"
	"github.com/vango-go/nava/pkg/gateway/ratelimit"
)

// LiveHandler handles /v1/live websocket sessions.
type LiveHandler struct {
	Config       config.Config
	Dialer       live.Dialer
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r)
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, 529)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}
	if h.Dialer == nil {
		writeCoreErrorJSON(w, reqID, core.NewAPIError("live assistant is not configured"), http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, first, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello")
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be hello")
		return
	}
	decoded, err := protocol.DecodeClientMessage(first)
	if err != nil {
		code := "bad_request"
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			code = de.Code
		}
		h.writeWSError(conn, code, err.Error())
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello")
		return
	}

	principalKey := mw.PrincipalKey(r)
	if h.Limiter != nil && h.Config.LiveMaxSessionsPerPrinc > 0 {
		dec := h.Limiter.AcquireLiveSession(principalKey, time.Now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit("live_session")
			h.writeWSError(conn, "rate_limited", "too many active live sessions")
			return
		}
		defer dec.Permit.Release()
	}

	stream, err := h.Dialer.Dial(r.Context(), live.Context{
		ProjectGoal:     hello.Context.ProjectGoal,
		StepTitle:       hello.Context.StepTitle,
		StepInstruction: hello.Context.StepInstruction,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("live dial failed", "request_id", reqID, "error", err)
		}
		h.writeWSError(conn, "upstream_unavailable", "failed to reach the live assistant")
		return
	}

	sessionID := "s_" + randHex(8)
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		AudioIn:         hello.AudioIn,
		AudioOut:        hello.AudioOut,
		Limits: &protocol.HelloAckLimits{
			MaxMessageBytes:     h.Config.LiveMaxMessageBytes,
			MaxFramesPerSecond:  h.Config.LiveMaxFramesPerSecond,
			InboundBurstSeconds: h.Config.LiveInboundBurstSeconds,
			MaxSessionMS:        h.Config.LiveMaxSessionDuration.Milliseconds(),
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		_ = stream.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Stream:    stream,
		Logger:    h.Logger,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		Config: session.Config{
			MaxFramesPerSecond:  h.Config.LiveMaxFramesPerSecond,
			InboundBurstSeconds: h.Config.LiveInboundBurstSeconds,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			MaxSessionDuration:  h.Config.LiveMaxSessionDuration,
		},
	})
	if err != nil {
		_ = stream.Close()
		h.writeWSError(conn, "internal", "failed to initialize live session")
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		Principal: principalKey,
		Cancel:    s.Cancel,
		Warn:      s.SendWarning,
	})
	defer unregister()

	if h.Logger != nil {
		h.Logger.Info("live session started", "session_id", sessionID, "request_id", reqID, "principal", principalKey, "hello", hello.RedactedForLog())
	}
	start := time.Now()
	h.Metrics.RecordLiveSessionStart()

	reason, err := s.Run()
	h.Metrics.RecordLiveSessionEnd(reason, time.Since(start))
	if h.Logger != nil {
		attrs := []any{"session_id", sessionID, "request_id", reqID, "reason", reason, "duration_ms", time.Since(start).Milliseconds()}
		if err != nil {
			h.Logger.Warn("live session ended with error", append(attrs, "error", err)...)
		} else {
			h.Logger.Info("live session ended", attrs...)
		}
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// writeWSError sends a closing error frame during the handshake.
func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message, Close: true})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
