package live

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/nava/pkg/core/types"
)

// Context is the build step the assistant is helping with. It is sent once,
// when the stream opens.
type Context struct {
	ProjectGoal     string `json:"project_goal"`
	StepTitle       string `json:"step_title"`
	StepInstruction string `json:"step_instruction"`
}

// Instruction renders the session-scoped system instruction for c.
func (c Context) Instruction() string {
	var b strings.Builder
	b.WriteString("You are a friendly workshop helper watching the user build a DIY project through their camera.\n")
	if g := strings.TrimSpace(c.ProjectGoal); g != "" {
		fmt.Fprintf(&b, "Project: %q.\n", g)
	}
	if t := strings.TrimSpace(c.StepTitle); t != "" {
		fmt.Fprintf(&b, "Current step: %q.\n", t)
	}
	if in := strings.TrimSpace(c.StepInstruction); in != "" {
		fmt.Fprintf(&b, "Step instruction: %q.\n", in)
	}
	b.WriteString("Use simple words and short sentences. Look at the video to check their work and warn them about anything unsafe.")
	return b.String()
}

// Dialer opens a stream to the backend and delivers the instruction for lc.
type Dialer interface {
	Dial(ctx context.Context, lc Context) (Stream, error)
}

// Stream is an open bidirectional live stream. Send must be safe for
// concurrent use; Recv is called from a single goroutine.
type Stream interface {
	Send(msg Outbound) error
	Recv() (Inbound, error)
	Close() error
}

// Outbound is a message to the backend: AudioChunk or VideoFrame.
type Outbound interface {
	outbound()
}

// AudioChunk is base64-framed 16kHz mono pcm_s16le.
type AudioChunk struct {
	Data       string
	SampleRate int
}

// VideoFrame is a base64-framed still.
type VideoFrame struct {
	MIMEType string
	Data     string
}

func (AudioChunk) outbound() {}
func (VideoFrame) outbound() {}

// NewAudioChunk frames raw input PCM for the wire.
func NewAudioChunk(pcm []byte) AudioChunk {
	return AudioChunk{Data: encodeBase64(pcm), SampleRate: InputFormat.SampleRate}
}

// PCM decodes the chunk payload.
func (a AudioChunk) PCM() ([]byte, error) {
	return decodeBase64(a.Data)
}

// NewVideoFrame frames an encoded still for the wire.
func NewVideoFrame(img types.Image) VideoFrame {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return VideoFrame{MIMEType: mime, Data: img.Base64()}
}

// Bytes decodes the frame payload.
func (v VideoFrame) Bytes() ([]byte, error) {
	return decodeBase64(v.Data)
}

// Inbound is a message from the backend. The set of variants is closed:
// AudioMessage, ErrorMessage, CloseMessage.
type Inbound interface {
	inbound()
}

// AudioMessage carries decoded output PCM.
type AudioMessage struct {
	PCM        []byte
	SampleRate int
}

// ErrorMessage reports a backend-side failure; the stream is unusable after it.
type ErrorMessage struct {
	Cause error
}

// CloseMessage reports an orderly remote close.
type CloseMessage struct {
	Reason string
}

func (AudioMessage) inbound() {}
func (ErrorMessage) inbound() {}
func (CloseMessage) inbound() {}

// DecodeAudioMessage builds an AudioMessage from a base64 payload.
func DecodeAudioMessage(data string, sampleRate int) (AudioMessage, error) {
	pcm, err := decodeBase64(data)
	if err != nil {
		return AudioMessage{}, err
	}
	if len(pcm)%2 != 0 {
		return AudioMessage{}, fmt.Errorf("audio payload has odd length %d", len(pcm))
	}
	if sampleRate <= 0 {
		sampleRate = OutputFormat.SampleRate
	}
	return AudioMessage{PCM: pcm, SampleRate: sampleRate}, nil
}
