// Package session bridges one /v1/live websocket to one backend live stream.
//
// Three goroutines cooperate: the client reader forwards audio and video
// frames upstream, the upstream reader queues backend audio for the client,
// and the outbound writer owns every socket write. The first goroutine to hit
// a terminal condition records the end reason and cancels the rest.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/gateway/live/protocol"
	"github.com/vango-go/nava/pkg/gateway/metrics"
)

// End reasons reported by Run and sent in the final close frame.
const (
	ReasonClientClose   = "client_close"
	ReasonClientGone    = "client_gone"
	ReasonUpstreamClose = "upstream_close"
	ReasonUpstreamError = "upstream_error"
	ReasonMaxDuration   = "max_duration"
	ReasonShutdown      = "shutdown"
	ReasonWriteFailed   = "write_failed"
)

var (
	errSessionClosed = errors.New("live session closed")
	errBackpressure  = errors.New("live outbound backpressure")
)

type Config struct {
	MaxFramesPerSecond  int
	InboundBurstSeconds int
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	MaxSessionDuration  time.Duration
	OutboundQueueSize   int
}

func (c Config) pingInterval() time.Duration {
	if c.PingInterval <= 0 {
		return 20 * time.Second
	}
	return c.PingInterval
}

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 5 * time.Second
	}
	return c.WriteTimeout
}

// Conn is the slice of *websocket.Conn the session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
}

type Dependencies struct {
	Conn      Conn
	Stream    live.Stream
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	SessionID string
	Config    Config
	Now       func() time.Time
}

type Session struct {
	conn    Conn
	stream  live.Stream
	log     *slog.Logger
	metrics *metrics.Metrics
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc

	priority chan outboundFrame
	normal   chan outboundFrame
	limiter  *frameLimiter

	endOnce sync.Once
	reason  string
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, errors.New("live session: conn is nil")
	}
	if deps.Stream == nil {
		return nil, errors.New("live session: stream is nil")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	queue := deps.Config.OutboundQueueSize
	if queue <= 0 {
		queue = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:     deps.Conn,
		stream:   deps.Stream,
		log:      log.With("session_id", deps.SessionID),
		metrics:  deps.Metrics,
		cfg:      deps.Config,
		ctx:      ctx,
		cancel:   cancel,
		priority: make(chan outboundFrame, 8),
		normal:   make(chan outboundFrame, queue),
		limiter:  newFrameLimiter(deps.Config.MaxFramesPerSecond, deps.Config.InboundBurstSeconds, deps.Now),
	}, nil
}

// Run bridges until either side ends the session and returns the end reason.
// The error is the socket write failure, if that is what ended it.
func (s *Session) Run() (string, error) {
	defer s.cancel()

	if d := s.cfg.MaxSessionDuration; d > 0 {
		t := time.AfterFunc(d, func() {
			s.finish(ReasonMaxDuration, protocol.ServerClose{Type: "close", Reason: ReasonMaxDuration})
		})
		defer t.Stop()
	}

	w := &outboundWriter{
		ws:       s.conn,
		ctx:      s.ctx,
		cfg:      s.cfg,
		priority: s.priority,
		normal:   s.normal,
		onWrite:  func(kind string) { s.metrics.RecordLiveFrame("out", kind) },
	}

	var (
		wg       sync.WaitGroup
		writeErr error
	)
	wg.Go(func() {
		if err := w.Run(); err != nil {
			writeErr = err
			s.finish(ReasonWriteFailed, nil)
		}
		_ = s.conn.Close()
	})
	wg.Go(s.readUpstream)
	wg.Go(func() {
		<-s.ctx.Done()
		_ = s.stream.Close()
	})

	s.readClient()
	s.finish(ReasonClientGone, nil)
	wg.Wait()
	return s.reason, writeErr
}

// Cancel ends the session for server shutdown.
func (s *Session) Cancel() {
	s.finish(ReasonShutdown, protocol.ServerClose{Type: "close", Reason: ReasonShutdown})
}

// SendWarning queues a warning frame ahead of any pending audio.
func (s *Session) SendWarning(code, message string) error {
	return s.enqueuePriority("warning", protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

// finish records reason and queues final before cancelling. Only the first
// call has any effect.
func (s *Session) finish(reason string, final any) {
	s.endOnce.Do(func() {
		s.reason = reason
		if final != nil {
			kind := "close"
			if _, ok := final.(protocol.ServerError); ok {
				kind = "error"
			}
			if err := s.enqueuePriority(kind, final); err != nil {
				s.log.Debug("live final frame dropped", "reason", reason, "error", err)
			}
		}
		s.cancel()
	})
}

func (s *Session) readClient() {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("live client read ended", "error", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if mt != websocket.TextMessage {
			s.sendError("bad_request", "binary frames are not supported", false)
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			code := "bad_request"
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				code = de.Code
			}
			s.sendError(code, err.Error(), false)
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientHello:
			s.sendError("bad_request", "hello already received", false)
		case protocol.ClientAudio:
			chunk := live.AudioChunk{Data: m.Data, SampleRate: live.InputFormat.SampleRate}
			if pcm, err := chunk.PCM(); err != nil || len(pcm)%2 != 0 {
				s.sendError("bad_request", "audio.data must be base64 pcm_s16le", false)
				continue
			}
			if !s.forward("audio", chunk) {
				return
			}
		case protocol.ClientVideo:
			frame := live.VideoFrame{MIMEType: m.MIMEType, Data: m.Data}
			if _, err := frame.Bytes(); err != nil {
				s.sendError("bad_request", "video.data must be base64", false)
				continue
			}
			if !s.forward("video", frame) {
				return
			}
		case protocol.ClientClose:
			s.finish(ReasonClientClose, protocol.ServerClose{Type: "close", Reason: ReasonClientClose})
			return
		}
	}
}

// forward sends one frame upstream. It returns false when the session must
// end.
func (s *Session) forward(kind string, msg live.Outbound) bool {
	ok, notify := s.limiter.Allow()
	if !ok {
		s.metrics.RecordLiveFrame("in", "dropped")
		if notify {
			s.sendError("rate_limited", "too many frames per second; frames are being dropped", false)
		}
		return true
	}
	if err := s.stream.Send(msg); err != nil {
		if s.ctx.Err() != nil {
			return false
		}
		s.log.Warn("live upstream send failed", "error", err)
		s.finish(ReasonUpstreamError, upstreamErrorFrame(err))
		return false
	}
	s.metrics.RecordLiveFrame("in", kind)
	return true
}

func (s *Session) readUpstream() {
	for {
		msg, err := s.stream.Recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.finish(ReasonUpstreamClose, protocol.ServerClose{Type: "close", Reason: ReasonUpstreamClose})
				return
			}
			s.log.Warn("live upstream receive failed", "error", err)
			s.finish(ReasonUpstreamError, upstreamErrorFrame(err))
			return
		}

		switch m := msg.(type) {
		case live.AudioMessage:
			frame := protocol.ServerAudio{
				Type:         "audio",
				Data:         base64.StdEncoding.EncodeToString(m.PCM),
				SampleRateHz: m.SampleRate,
			}
			if err := s.enqueueNormal("audio", frame); err != nil {
				return
			}
		case live.ErrorMessage:
			s.log.Warn("live upstream error", "error", m.Cause)
			s.finish(ReasonUpstreamError, upstreamErrorFrame(m.Cause))
			return
		case live.CloseMessage:
			// Queued behind the remaining audio so the client hears all of it.
			_ = s.enqueueNormal("close", protocol.ServerClose{Type: "close", Reason: ReasonUpstreamClose})
			s.finish(ReasonUpstreamClose, nil)
			return
		}
	}
}

func (s *Session) sendError(code, message string, closing bool) {
	err := s.enqueuePriority("error", protocol.ServerError{
		Type:    "error",
		Scope:   "frame",
		Code:    code,
		Message: message,
		Close:   closing,
	})
	if err != nil && !errors.Is(err, errSessionClosed) {
		s.log.Debug("live error frame dropped", "code", code, "error", err)
	}
}

func (s *Session) enqueuePriority(kind string, msg any) error {
	f, err := encodeFrame(kind, msg)
	if err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return errSessionClosed
	}
	select {
	case s.priority <- f:
		return nil
	default:
		return errBackpressure
	}
}

// enqueueNormal blocks until there is room so backend audio is never dropped.
func (s *Session) enqueueNormal(kind string, msg any) error {
	f, err := encodeFrame(kind, msg)
	if err != nil {
		return err
	}
	select {
	case s.normal <- f:
		return nil
	case <-s.ctx.Done():
		return errSessionClosed
	}
}

func encodeFrame(kind string, msg any) (outboundFrame, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return outboundFrame{}, err
	}
	return outboundFrame{kind: kind, payload: payload}, nil
}

func upstreamErrorFrame(err error) protocol.ServerError {
	retryable := true
	var ce *core.Error
	if errors.As(err, &ce) {
		retryable = ce.IsRetryable() || ce.Type == core.ErrTransport
	}
	return protocol.ServerError{
		Type:      "error",
		Scope:     "upstream",
		Code:      ReasonUpstreamError,
		Message:   "the live assistant connection failed",
		Retryable: retryable,
		Close:     true,
	}
}
