package live

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
)

func chunk(level int16) []byte {
	samples := make([]int16, InputFormat.BytesFor(InputPeriod)/2)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = level
		} else {
			samples[i] = -level
		}
	}
	return pcmFromSamples(samples)
}

func TestRecognizer_StopsOnTrailingSilence(t *testing.T) {
	src := newFakeSource()
	src.chunks = make(chan []byte, 128)
	for i := 0; i < 5; i++ {
		src.chunks <- chunk(0)
	}
	for i := 0; i < 10; i++ {
		src.chunks <- chunk(8000)
	}
	// 60 silent chunks = 1.2s of trailing silence; extra ones must not be read.
	for i := 0; i < 80; i++ {
		src.chunks <- chunk(0)
	}

	var gotLen int
	var gotLang string
	rec := NewRecognizer(&fakeCapture{src: src}, func(ctx context.Context, pcm []byte, lang string) (string, error) {
		gotLen, gotLang = len(pcm), lang
		return "how deep should I cut", nil
	}, RecognizerConfig{})

	es, _ := types.LookupLanguage("es")
	text, err := rec.Recognize(context.Background(), es)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "how deep should I cut" || gotLang != "es" {
		t.Fatalf("text=%q lang=%q", text, gotLang)
	}
	wantChunks := 5 + 10 + 60
	if gotLen != wantChunks*len(chunk(0)) {
		t.Fatalf("transcribed %d bytes, want %d", gotLen, wantChunks*len(chunk(0)))
	}
	if src.closes.Load() != 1 {
		t.Fatalf("microphone closed %d times", src.closes.Load())
	}
}

func TestRecognizer_SilenceOnly(t *testing.T) {
	src := newFakeSource()
	src.chunks = make(chan []byte, 512)
	for i := 0; i < 400; i++ {
		src.chunks <- chunk(0)
	}
	rec := NewRecognizer(&fakeCapture{src: src}, func(context.Context, []byte, string) (string, error) {
		t.Fatalf("transcribe called for silence")
		return "", nil
	}, RecognizerConfig{})

	if _, err := rec.Recognize(context.Background(), types.DefaultLanguage); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestRecognizer_MicrophoneUnavailable(t *testing.T) {
	rec := NewRecognizer(&fakeCapture{err: errors.New("busy")}, nil, RecognizerConfig{})
	_, err := rec.Recognize(context.Background(), types.DefaultLanguage)
	if !core.IsType(err, core.ErrMediaAccess) {
		t.Fatalf("err = %v, want media access error", err)
	}
}
