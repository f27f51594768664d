package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

const helloJSON = `{
	"type":"hello",
	"protocol_version":"1",
	"context":{"project_goal":"Pencil holder","step_title":"Cut","step_instruction":"Cut the top flaps off."},
	"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},
	"audio_out":{"encoding":"pcm_s16le","sample_rate_hz":24000,"channels":1}
}`

func TestDecodeClientMessage_Hello(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(helloJSON))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.Context.StepTitle != "Cut" || hello.AudioOut.SampleRateHz != 24000 {
		t.Fatalf("hello = %+v", hello)
	}
	if got := hello.RedactedForLog()["has_step"]; got != true {
		t.Fatalf("has_step = %v", got)
	}
}

func TestValidateHello_Rejects(t *testing.T) {
	base := ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		AudioIn:         AudioFormat{Encoding: EncodingPCMS16LE, SampleRateHz: 16000, Channels: 1},
		AudioOut:        AudioFormat{Encoding: EncodingPCMS16LE, SampleRateHz: 24000, Channels: 1},
	}
	if err := ValidateHello(base); err != nil {
		t.Fatalf("ValidateHello(base) = %v", err)
	}

	cases := []struct {
		name      string
		mutate    func(*ClientHello)
		wantCode  string
		wantParam string
	}{
		{"missing version", func(h *ClientHello) { h.ProtocolVersion = "" }, "bad_request", "protocol_version"},
		{"future version", func(h *ClientHello) { h.ProtocolVersion = "2" }, "unsupported", "protocol_version"},
		{"input encoding", func(h *ClientHello) { h.AudioIn.Encoding = "opus" }, "unsupported", "audio_in.encoding"},
		{"input rate", func(h *ClientHello) { h.AudioIn.SampleRateHz = 48000 }, "unsupported", "audio_in.sample_rate_hz"},
		{"output rate missing", func(h *ClientHello) { h.AudioOut.SampleRateHz = 0 }, "bad_request", "audio_out.sample_rate_hz"},
		{"stereo", func(h *ClientHello) { h.AudioOut.Channels = 2 }, "unsupported", "audio_out.channels"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := base
			tc.mutate(&h)
			err := ValidateHello(h)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DecodeError", err)
			}
			if de.Code != tc.wantCode || de.Param != tc.wantParam {
				t.Fatalf("error = %+v, want %s/%s", de, tc.wantCode, tc.wantParam)
			}
		})
	}
}

func TestDecodeClientMessage_Frames(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"video","data":"AAEC"}`))
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if v := msg.(ClientVideo); v.MIMEType != "image/jpeg" {
		t.Fatalf("video mime = %q, want default image/jpeg", v.MIMEType)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"audio","data":"AAA="}`))
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	if _, ok := msg.(ClientAudio); !ok {
		t.Fatalf("audio decoded as %T", msg)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"close"}`))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := msg.(ClientClose); !ok {
		t.Fatalf("close decoded as %T", msg)
	}
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"missing type": `{"data":"x"}`,
		"unknown type": `{"type":"dance"}`,
		"empty audio":  `{"type":"audio","data":""}`,
		"gif video":    `{"type":"video","mime_type":"image/gif","data":"AA=="}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeClientMessage([]byte(raw)); err == nil {
				t.Fatalf("DecodeClientMessage(%s) error = nil", raw)
			}
		})
	}
}

func TestDecodeServerMessage(t *testing.T) {
	frames := []any{
		ServerHelloAck{Type: "hello_ack", ProtocolVersion: "1", SessionID: "s1"},
		ServerAudio{Type: "audio", Data: "AAA=", SampleRateHz: 24000},
		ServerError{Type: "error", Code: "rate_limited", Message: "slow down", Close: true},
		ServerWarning{Type: "warning", Code: "draining", Message: "server restarting"},
		ServerClose{Type: "close", Reason: "client_close"},
	}
	for _, want := range frames {
		raw, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got, err := DecodeServerMessage(raw)
		if err != nil {
			t.Fatalf("DecodeServerMessage(%s) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("DecodeServerMessage(%s) = %#v, want %#v", raw, got, want)
		}
	}
}
