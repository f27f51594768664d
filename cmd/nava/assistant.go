package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/types"
)

// liveAssistant creates the live session on first use so the guide works
// without audio devices until the assistant is asked for.
type liveAssistant struct {
	a      *app
	dialer live.Dialer
	camera string

	mu      sync.Mutex
	session *live.Session
}

func newLiveAssistant(a *app, dialer live.Dialer, camera string) *liveAssistant {
	return &liveAssistant{a: a, dialer: dialer, camera: camera}
}

func (l *liveAssistant) get() (*live.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		return l.session, nil
	}
	if l.dialer == nil {
		return nil, errors.New("no live backend")
	}
	dev, err := l.a.mediaDevices()
	if err != nil {
		return nil, core.NewMediaAccessError("microphone", err)
	}
	cfg := live.Config{
		Dialer:   l.dialer,
		Audio:    dev,
		Playback: dev,
		Logger:   l.a.log,
	}
	if l.camera != "" {
		cfg.Video = fileCamera{path: l.camera}
	}
	s := live.NewSession(cfg)
	out := l.a.out
	s.OnStatus(func(st live.Status, err error) {
		if err != nil {
			fmt.Fprintf(out, "[live] %s: %v\n", st, err)
			return
		}
		fmt.Fprintf(out, "[live] %s\n", st)
	})
	l.session = s
	return s, nil
}

// Toggle starts the assistant for lc, or stops it when running.
func (l *liveAssistant) Toggle(ctx context.Context, lc live.Context) error {
	s, err := l.get()
	if err != nil {
		return err
	}
	return s.Start(ctx, lc)
}

// Stop ends a running session. The guide calls it on every step change.
func (l *liveAssistant) Stop() {
	l.mu.Lock()
	s := l.session
	l.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (l *liveAssistant) Close() {
	l.mu.Lock()
	s := l.session
	l.session = nil
	l.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// lazyRecognizer opens the microphone only when voice input is used.
type lazyRecognizer struct {
	media      func() (mediaDevices, error)
	transcribe live.TranscribeFunc
}

func (r lazyRecognizer) Recognize(ctx context.Context, lang types.Language) (string, error) {
	dev, err := r.media()
	if err != nil {
		return "", core.NewMediaAccessError("microphone", err)
	}
	return live.NewRecognizer(dev, r.transcribe, live.RecognizerConfig{}).Recognize(ctx, lang)
}
