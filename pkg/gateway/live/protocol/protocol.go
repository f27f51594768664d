// Package protocol defines the JSON frames exchanged on /v1/live.
//
// The client opens with hello and waits for hello_ack. After that it streams
// audio and video frames and may send close at any time. The server streams
// audio back and reports error, warning and close.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCMS16LE = "pcm_s16le"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// StepContext is the build step the session is about.
type StepContext struct {
	ProjectGoal     string `json:"project_goal"`
	StepTitle       string `json:"step_title"`
	StepInstruction string `json:"step_instruction"`
}

type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Context         StepContext `json:"context"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// RedactedForLog drops the free-text step fields.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"audio_in":         h.AudioIn,
		"audio_out":        h.AudioOut,
		"has_step":         strings.TrimSpace(h.Context.StepTitle) != "",
	}
}

type ClientAudio struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type ClientVideo struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type ClientClose struct {
	Type string `json:"type"`
}

// DecodeClientMessage returns one of ClientHello, ClientAudio, ClientVideo or
// ClientClose.
func DecodeClientMessage(data []byte) (any, error) {
	typ, err := envelopeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badRequest("audio.data is required", "data")
		}
		return msg, nil
	case "video":
		var msg ClientVideo
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid video frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badRequest("video.data is required", "data")
		}
		switch msg.MIMEType {
		case "":
			msg.MIMEType = "image/jpeg"
		case "image/jpeg", "image/png":
		default:
			return nil, unsupported("unsupported video mime type", "mime_type")
		}
		return msg, nil
	case "close":
		return ClientClose{Type: typ}, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if err := validateFormat("audio_in", msg.AudioIn, 16000); err != nil {
		return err
	}
	return validateFormat("audio_out", msg.AudioOut, 24000)
}

func validateFormat(name string, f AudioFormat, rate int) error {
	if strings.TrimSpace(f.Encoding) == "" {
		return badRequest("hello."+name+".encoding is required", name+".encoding")
	}
	if f.Encoding != EncodingPCMS16LE {
		return unsupported("hello."+name+".encoding must be pcm_s16le", name+".encoding")
	}
	if f.SampleRateHz <= 0 {
		return badRequest("hello."+name+".sample_rate_hz must be > 0", name+".sample_rate_hz")
	}
	if f.SampleRateHz != rate {
		return unsupported(fmt.Sprintf("hello.%s.sample_rate_hz must be %d", name, rate), name+".sample_rate_hz")
	}
	if f.Channels != 1 {
		return unsupported("hello."+name+".channels must be 1", name+".channels")
	}
	return nil
}

type HelloAckLimits struct {
	MaxMessageBytes     int64 `json:"max_message_bytes"`
	MaxFramesPerSecond  int   `json:"max_frames_per_second,omitempty"`
	InboundBurstSeconds int   `json:"inbound_burst_seconds,omitempty"`
	MaxSessionMS        int64 `json:"max_session_ms,omitempty"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	AudioIn         AudioFormat     `json:"audio_in"`
	AudioOut        AudioFormat     `json:"audio_out"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

type ServerAudio struct {
	Type         string `json:"type"`
	Data         string `json:"data"`
	SampleRateHz int    `json:"sample_rate_hz"`
}

type ServerError struct {
	Type      string `json:"type"`
	Scope     string `json:"scope,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Close     bool   `json:"close,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerClose struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// DecodeServerMessage returns one of ServerHelloAck, ServerAudio,
// ServerError, ServerWarning or ServerClose.
func DecodeServerMessage(data []byte) (any, error) {
	typ, err := envelopeType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "hello_ack":
		return decodeAs[ServerHelloAck](data, typ)
	case "audio":
		return decodeAs[ServerAudio](data, typ)
	case "error":
		return decodeAs[ServerError](data, typ)
	case "warning":
		return decodeAs[ServerWarning](data, typ)
	case "close":
		return decodeAs[ServerClose](data, typ)
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func decodeAs[T any](data []byte, typ string) (any, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, badRequest("invalid "+typ+" frame", "")
	}
	return msg, nil
}

func envelopeType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badRequest("missing type", "type")
	}
	return typ, nil
}
