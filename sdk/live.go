package nava

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/gateway/live/protocol"
)

const (
	defaultLiveConnectTimeout = 10 * time.Second
	liveWriteTimeout          = 5 * time.Second
)

// LiveDialer opens live assistant streams through the gateway's /v1/live
// bridge. It satisfies live.Dialer.
type LiveDialer struct {
	client *Client
	dialer *websocket.Dialer
}

var _ live.Dialer = (*LiveDialer)(nil)

// LiveDialer returns a dialer sharing c's gateway URL and API key.
func (c *Client) LiveDialer() *LiveDialer {
	return &LiveDialer{client: c, dialer: websocket.DefaultDialer}
}

// Dial opens the socket, sends hello for lc and waits for hello_ack.
func (d *LiveDialer) Dial(ctx context.Context, lc live.Context) (live.Stream, error) {
	wsURL, err := d.client.gatewayWebSocketEndpoint("/v1/live")
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultLiveConnectTimeout)
		defer cancel()
	}

	headers := make(http.Header)
	headers.Set(versionHeader, versionValue)
	if d.client.apiKey != "" {
		headers.Set("Authorization", "Bearer "+d.client.apiKey)
	}
	conn, resp, err := d.dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, &TransportError{Op: http.MethodGet, URL: wsURL, Err: err}
	}
	// Cancelling ctx before hello_ack arrives closes the socket.
	stopClose := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	defer stopClose()

	hello := protocol.ClientHello{
		Type:            "hello",
		ProtocolVersion: protocol.ProtocolVersion1,
		Context: protocol.StepContext{
			ProjectGoal:     lc.ProjectGoal,
			StepTitle:       lc.StepTitle,
			StepInstruction: lc.StepInstruction,
		},
		AudioIn:  protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE, SampleRateHz: live.InputFormat.SampleRate, Channels: 1},
		AudioOut: protocol.AudioFormat{Encoding: protocol.EncodingPCMS16LE, SampleRateHz: live.OutputFormat.SampleRate, Channels: 1},
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live hello: %w", err)
	}

	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %d", messageType)
	}

	first, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch m := first.(type) {
	case protocol.ServerHelloAck:
		rate := m.AudioOut.SampleRateHz
		if rate <= 0 {
			rate = live.OutputFormat.SampleRate
		}
		d.client.logger.Debug("nava: live session opened", "session_id", m.SessionID)
		return &liveStream{conn: conn, sampleRate: rate, log: d.client.logger}, nil
	case protocol.ServerError:
		_ = conn.Close()
		return nil, liveError(m)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame %T", first)
	}
}

// liveError converts a closing error frame into the canonical error.
func liveError(m protocol.ServerError) *core.Error {
	e := &core.Error{Type: core.ErrAPI, Message: strings.TrimSpace(m.Message), Code: strings.TrimSpace(m.Code)}
	switch m.Code {
	case "rate_limited":
		e.Type = core.ErrRateLimit
	case "bad_request", "unsupported":
		e.Type = core.ErrInvalidRequest
	case "upstream_error", "upstream_unavailable":
		e.Type = core.ErrTransport
	}
	return e
}

type liveStream struct {
	conn       *websocket.Conn
	sampleRate int
	log        *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func (s *liveStream) Send(msg live.Outbound) error {
	var frame any
	switch m := msg.(type) {
	case live.AudioChunk:
		frame = protocol.ClientAudio{Type: "audio", Data: m.Data}
	case live.VideoFrame:
		frame = protocol.ClientVideo{Type: "video", MIMEType: m.MIMEType, Data: m.Data}
	default:
		return fmt.Errorf("unsupported outbound message %T", msg)
	}
	return s.writeJSON(frame)
}

func (s *liveStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errors.New("live stream is closed")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return s.conn.WriteJSON(v)
}

// Recv returns the next audio, closing error or close. Frame-scoped errors
// and warnings are logged and skipped.
func (s *liveStream) Recv() (live.Inbound, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
					return live.CloseMessage{Reason: ce.Text}, nil
				}
				return live.ErrorMessage{Cause: fmt.Errorf("gateway live closed: %d %s", ce.Code, ce.Text)}, nil
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			s.log.Debug("nava: undecodable live frame", "error", err)
			continue
		}
		switch m := msg.(type) {
		case protocol.ServerAudio:
			rate := m.SampleRateHz
			if rate <= 0 {
				rate = s.sampleRate
			}
			audio, err := live.DecodeAudioMessage(m.Data, rate)
			if err != nil {
				s.log.Debug("nava: bad live audio frame", "error", err)
				continue
			}
			return audio, nil
		case protocol.ServerError:
			if m.Close {
				return live.ErrorMessage{Cause: liveError(m)}, nil
			}
			s.log.Debug("nava: live frame rejected", "code", m.Code, "message", m.Message)
		case protocol.ServerWarning:
			s.log.Debug("nava: live warning", "code", m.Code, "message", m.Message)
		case protocol.ServerClose:
			return live.CloseMessage{Reason: m.Reason}, nil
		}
	}
}

// Close says goodbye and closes the socket. Only the first call writes.
func (s *liveStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.writeJSON(protocol.ClientClose{Type: "close"})
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
