package live

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/vango-go/nava/pkg/core/types"
)

// AudioCapture opens the microphone.
type AudioCapture interface {
	OpenCapture(ctx context.Context, format Format) (AudioSource, error)
}

// AudioSource yields one device buffer per Read.
type AudioSource interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// VideoCapture opens the camera.
type VideoCapture interface {
	OpenVideo(ctx context.Context) (FrameSource, error)
}

// FrameSource returns the current camera frame.
type FrameSource interface {
	Snapshot(ctx context.Context) (image.Image, error)
	Close() error
}

// AudioPlayback opens the speaker.
type AudioPlayback interface {
	OpenPlayback(format Format) (AudioSink, error)
}

// AudioSink plays PCM starting at the given time.
type AudioSink interface {
	Enqueue(at time.Time, pcm []byte) error
	Close() error
}

// SpeechRecognizer turns one spoken utterance into text.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, lang types.Language) (string, error)
}

type closer interface {
	Close() error
}

// handle releases its resource at most once.
type handle struct {
	name string
	c    closer
	once sync.Once
	err  error
}

func (h *handle) release() error {
	h.once.Do(func() {
		h.err = h.c.Close()
	})
	return h.err
}
