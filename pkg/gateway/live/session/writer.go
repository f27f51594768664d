package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one encoded server message. kind labels it for metrics.
type outboundFrame struct {
	kind    string
	payload []byte
}

// outboundWriter is the only goroutine writing to the socket. Control frames
// (errors, warnings, close) go on priority and always beat queued audio.
type outboundWriter struct {
	ws       wsWriter
	ctx      context.Context
	cfg      Config
	priority <-chan outboundFrame
	normal   <-chan outboundFrame
	onWrite  func(kind string)
}

func (w *outboundWriter) Run() error {
	ping := time.NewTicker(w.cfg.pingInterval())
	defer ping.Stop()

	for {
		select {
		case f, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(f); err != nil {
				return err
			}
			continue
		default:
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-w.ctx.Done():
			w.shutdown()
			return nil
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.writeTimeout())); err != nil {
				return err
			}
		case f, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(f); err != nil {
				return err
			}
		case f, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			if err := w.write(f); err != nil {
				return err
			}
		}
	}
}

// shutdown flushes what is already queued, control frames first, for a short
// while and then closes the socket.
func (w *outboundWriter) shutdown() {
	deadline := time.Now().Add(min(100*time.Millisecond, w.cfg.writeTimeout()))
	budget := 32
	for _, ch := range []<-chan outboundFrame{w.priority, w.normal} {
	drain:
		for budget > 0 && time.Now().Before(deadline) {
			select {
			case f, ok := <-ch:
				if !ok {
					break drain
				}
				if w.write(f) != nil {
					budget = 0
					break drain
				}
				budget--
			default:
				break drain
			}
		}
	}
	_ = w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(w.cfg.writeTimeout()))
	_ = w.ws.Close()
}

func (w *outboundWriter) write(f outboundFrame) error {
	if len(f.payload) == 0 {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.cfg.writeTimeout())); err != nil {
		return err
	}
	if err := w.ws.WriteMessage(websocket.TextMessage, f.payload); err != nil {
		return err
	}
	if w.onWrite != nil {
		w.onWrite(f.kind)
	}
	return nil
}
