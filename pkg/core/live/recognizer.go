package live

import (
	"context"
	"errors"
	"time"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
)

// TranscribeFunc converts 16kHz mono pcm_s16le to text.
type TranscribeFunc func(ctx context.Context, pcm []byte, languageCode string) (string, error)

// RecognizerConfig tunes utterance endpointing.
type RecognizerConfig struct {
	// MaxDuration caps one utterance. Default: 8s.
	MaxDuration time.Duration
	// TrailingSilence ends the utterance once speech was heard. Default: 1.2s.
	TrailingSilence time.Duration
	// SpeechThreshold is the RMS level that counts as speech. Default: 0.02.
	SpeechThreshold float64
}

func (c RecognizerConfig) withDefaults() RecognizerConfig {
	if c.MaxDuration <= 0 {
		c.MaxDuration = 8 * time.Second
	}
	if c.TrailingSilence <= 0 {
		c.TrailingSilence = 1200 * time.Millisecond
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.02
	}
	return c
}

// Recognizer records one utterance from the microphone and transcribes it.
type Recognizer struct {
	capture    AudioCapture
	transcribe TranscribeFunc
	cfg        RecognizerConfig
}

// NewRecognizer builds a SpeechRecognizer on top of a capture device.
func NewRecognizer(capture AudioCapture, transcribe TranscribeFunc, cfg RecognizerConfig) *Recognizer {
	return &Recognizer{capture: capture, transcribe: transcribe, cfg: cfg.withDefaults()}
}

// ErrNoSpeech is returned when the utterance window held only silence.
var ErrNoSpeech = errors.New("live: no speech detected")

// Recognize listens until trailing silence after speech, or MaxDuration.
func (r *Recognizer) Recognize(ctx context.Context, lang types.Language) (string, error) {
	src, err := r.capture.OpenCapture(ctx, InputFormat)
	if err != nil {
		return "", core.NewMediaAccessError("microphone", err)
	}
	defer src.Close()

	var (
		pcm      []byte
		heard    bool
		silence  time.Duration
		recorded time.Duration
	)
	for recorded < r.cfg.MaxDuration {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", core.NewMediaAccessError("microphone", err)
		}
		d := InputFormat.Duration(len(chunk))
		recorded += d
		pcm = append(pcm, chunk...)

		if CalculateRMSEnergy(chunk) >= r.cfg.SpeechThreshold {
			heard = true
			silence = 0
			continue
		}
		if heard {
			silence += d
			if silence >= r.cfg.TrailingSilence {
				break
			}
		}
	}
	if !heard {
		return "", ErrNoSpeech
	}
	return r.transcribe(ctx, pcm, lang.Code)
}
