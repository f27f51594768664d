package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/nava/pkg/core/live"
)

// liveConn is the slice of *genai.Session the stream uses.
type liveConn interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type liveConnector interface {
	connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveConn, error)
}

type sdkLive struct {
	live *genai.Live
}

func (s sdkLive) connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveConn, error) {
	sess, err := s.live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// LiveDialer opens native-audio sessions directly against Gemini.
type LiveDialer struct {
	conn  liveConnector
	model string
	log   *slog.Logger
}

var _ live.Dialer = (*LiveDialer)(nil)

// LiveDialer returns a dialer sharing c's credentials.
func (c *Client) LiveDialer() *LiveDialer {
	return &LiveDialer{conn: c.live, model: c.opts.liveModel, log: c.log}
}

// Dial connects and sends the step instruction as the session's system
// instruction. Audio comes back as 24kHz PCM.
func (d *LiveDialer) Dial(ctx context.Context, lc live.Context) (live.Stream, error) {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(lc.Instruction(), genai.RoleUser),
	}
	conn, err := d.conn.connect(ctx, d.model, cfg)
	if err != nil {
		return nil, mapError("live", err)
	}
	d.log.Debug("gemini: live connected", "model", d.model)
	return &liveStream{conn: conn}, nil
}

type liveStream struct {
	conn liveConn

	writeMu sync.Mutex
	queue   []live.Inbound

	closeOnce sync.Once
	closeErr  error
}

// Send forwards one outbound message. Writes are serialized because the
// underlying websocket allows a single writer.
func (s *liveStream) Send(msg live.Outbound) error {
	var in genai.LiveRealtimeInput
	switch m := msg.(type) {
	case live.AudioChunk:
		pcm, err := m.PCM()
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		rate := m.SampleRate
		if rate <= 0 {
			rate = live.InputFormat.SampleRate
		}
		in.Audio = &genai.Blob{Data: pcm, MIMEType: live.Format{SampleRate: rate, Channels: 1}.MIMEType()}
	case live.VideoFrame:
		data, err := m.Bytes()
		if err != nil {
			return fmt.Errorf("decode video frame: %w", err)
		}
		in.Video = &genai.Blob{Data: data, MIMEType: m.MIMEType}
	default:
		return fmt.Errorf("unsupported outbound message %T", msg)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.SendRealtimeInput(in)
}

// Recv returns the next audio chunk, error or close. Server messages without
// audio (transcripts, turn markers, usage) are skipped.
func (s *liveStream) Recv() (live.Inbound, error) {
	for len(s.queue) == 0 {
		msg, err := s.conn.Receive()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
					return live.CloseMessage{Reason: ce.Text}, nil
				}
				return live.ErrorMessage{Cause: fmt.Errorf("gemini live closed: %d %s", ce.Code, ce.Text)}, nil
			}
			return nil, err
		}
		s.queue = appendInbound(s.queue, msg)
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

func appendInbound(q []live.Inbound, msg *genai.LiveServerMessage) []live.Inbound {
	if msg == nil {
		return q
	}
	if sc := msg.ServerContent; sc != nil && sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			rate, ok := pcmRate(p.InlineData.MIMEType)
			if !ok {
				continue
			}
			q = append(q, live.AudioMessage{PCM: p.InlineData.Data, SampleRate: rate})
		}
	}
	if msg.GoAway != nil {
		q = append(q, live.CloseMessage{Reason: "server going away"})
	}
	return q
}

// pcmRate parses "audio/pcm;rate=24000". A bare audio/pcm is the output rate.
func pcmRate(mimeType string) (int, bool) {
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil || !strings.EqualFold(mt, "audio/pcm") {
		return 0, false
	}
	if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
		return r, true
	}
	return live.OutputFormat.SampleRate, true
}

func (s *liveStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
