package live

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/nava/pkg/core"
)

type fakeSource struct {
	chunks    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.chunks:
		return b, nil
	case <-f.closed:
		return nil, errors.New("source closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSource) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type fakeCapture struct {
	src    *fakeSource
	err    error
	opens  atomic.Int32
	onOpen func()
}

func (f *fakeCapture) OpenCapture(ctx context.Context, format Format) (AudioSource, error) {
	f.opens.Add(1)
	if f.onOpen != nil {
		f.onOpen()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

type fakeFrames struct {
	closes atomic.Int32
}

func (f *fakeFrames) Snapshot(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (f *fakeFrames) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeVideo struct {
	frames *fakeFrames
	err    error
}

func (f *fakeVideo) OpenVideo(ctx context.Context) (FrameSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.frames, nil
}

type enqueued struct {
	at time.Time
	n  int
}

type fakeSink struct {
	mu     sync.Mutex
	queued []enqueued
	closes atomic.Int32
}

func (f *fakeSink) Enqueue(at time.Time, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, enqueued{at: at, n: len(pcm)})
	return nil
}

func (f *fakeSink) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeSink) snapshot() []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enqueued(nil), f.queued...)
}

type fakePlayback struct {
	sink *fakeSink
	err  error
}

func (f *fakePlayback) OpenPlayback(format Format) (AudioSink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sink, nil
}

type fakeStream struct {
	sent      chan Outbound
	inbound   chan Inbound
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
	hold      chan struct{} // when set, Close waits for it to close
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		sent:    make(chan Outbound, 64),
		inbound: make(chan Inbound, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeStream) Send(msg Outbound) error {
	select {
	case <-f.closed:
		return errors.New("stream closed")
	default:
	}
	select {
	case f.sent <- msg:
	default:
	}
	return nil
}

func (f *fakeStream) Recv() (Inbound, error) {
	select {
	case m := <-f.inbound:
		return m, nil
	case <-f.closed:
		return nil, errors.New("stream closed")
	}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	if f.hold != nil {
		<-f.hold
	}
	return nil
}

type fakeDialer struct {
	stream *fakeStream
	err    error
	dials  atomic.Int32
	got    Context
}

func (f *fakeDialer) Dial(ctx context.Context, lc Context) (Stream, error) {
	f.dials.Add(1)
	f.got = lc
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// hangingDialer blocks until its context is cancelled.
type hangingDialer struct {
	entered chan struct{}
}

func (d *hangingDialer) Dial(ctx context.Context, lc Context) (Stream, error) {
	close(d.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

type rig struct {
	src    *fakeSource
	frames *fakeFrames
	sink   *fakeSink
	stream *fakeStream
	dialer *fakeDialer
	cfg    Config
}

func newRig() *rig {
	r := &rig{
		src:    newFakeSource(),
		frames: &fakeFrames{},
		sink:   &fakeSink{},
		stream: newFakeStream(),
	}
	r.dialer = &fakeDialer{stream: r.stream}
	r.cfg = Config{
		Dialer:        r.dialer,
		Audio:         &fakeCapture{src: r.src},
		Video:         &fakeVideo{frames: r.frames},
		Playback:      &fakePlayback{sink: r.sink},
		FrameInterval: time.Hour,
	}
	return r
}

func (r *rig) assertReleasedOnce(t *testing.T) {
	t.Helper()
	if n := r.src.closes.Load(); n != 1 {
		t.Fatalf("microphone closed %d times, want 1", n)
	}
	if n := r.frames.closes.Load(); n != 1 {
		t.Fatalf("camera closed %d times, want 1", n)
	}
	if n := r.sink.closes.Load(); n != 1 {
		t.Fatalf("speaker closed %d times, want 1", n)
	}
	if n := r.stream.closes.Load(); n != 1 {
		t.Fatalf("stream closed %d times, want 1", n)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var stepContext = Context{ProjectGoal: "Pencil Holder", StepTitle: "Cut", StepInstruction: "Cut the flaps off."}

func TestSession_StartStreamsAudio(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("status = %v, want connected", s.Status())
	}
	if r.dialer.got != stepContext {
		t.Fatalf("dialed with %+v", r.dialer.got)
	}

	pcm := pcmFromSamples([]int16{100, -100, 200, -200})
	r.src.chunks <- pcm

	select {
	case msg := <-r.stream.sent:
		chunk, ok := msg.(AudioChunk)
		if !ok {
			t.Fatalf("sent %T, want AudioChunk", msg)
		}
		got, err := chunk.PCM()
		if err != nil || string(got) != string(pcm) || chunk.SampleRate != 16000 {
			t.Fatalf("chunk = %+v (%v)", chunk, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no audio chunk sent")
	}
}

func TestSession_SendsVideoFrames(t *testing.T) {
	r := newRig()
	r.cfg.FrameInterval = 5 * time.Millisecond
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case msg := <-r.stream.sent:
		frame, ok := msg.(VideoFrame)
		if !ok {
			t.Fatalf("sent %T, want VideoFrame", msg)
		}
		if frame.MIMEType != "image/jpeg" || frame.Data == "" {
			t.Fatalf("frame = %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no video frame sent")
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)

	s.Stop()
	if s.Status() != StatusDisconnected {
		t.Fatalf("stop on fresh session changed status to %v", s.Status())
	}

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()
	s.Close()

	if s.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", s.Status())
	}
	r.assertReleasedOnce(t)
}

func TestSession_StartWhileActiveStops(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected after toggle", s.Status())
	}
	if n := r.dialer.dials.Load(); n != 1 {
		t.Fatalf("dialed %d times, want 1", n)
	}
	r.assertReleasedOnce(t)
}

func TestSession_MediaAccessFailure(t *testing.T) {
	r := newRig()
	r.cfg.Audio = &fakeCapture{err: errors.New("permission denied")}
	s := NewSession(r.cfg)
	defer s.Close()

	err := s.Start(context.Background(), stepContext)
	if !core.IsType(err, core.ErrMediaAccess) {
		t.Fatalf("err = %v, want media access error", err)
	}
	if s.Status() != StatusError || !core.IsType(s.Err(), core.ErrMediaAccess) {
		t.Fatalf("status = %v err = %v", s.Status(), s.Err())
	}
	if r.dialer.dials.Load() != 0 {
		t.Fatalf("dialed despite media failure")
	}
}

func TestSession_PartialStartReleasesAcquiredHandles(t *testing.T) {
	r := newRig()
	r.cfg.Video = &fakeVideo{err: errors.New("no camera")}
	s := NewSession(r.cfg)
	defer s.Close()

	err := s.Start(context.Background(), stepContext)
	if !core.IsType(err, core.ErrMediaAccess) {
		t.Fatalf("err = %v, want media access error", err)
	}
	if n := r.src.closes.Load(); n != 1 {
		t.Fatalf("microphone closed %d times, want 1", n)
	}
	if n := r.sink.closes.Load(); n != 0 {
		t.Fatalf("speaker closed %d times before being opened", n)
	}

	s.Stop()
	if s.Status() != StatusDisconnected {
		t.Fatalf("stop from error = %v", s.Status())
	}
	if n := r.src.closes.Load(); n != 1 {
		t.Fatalf("microphone closed %d times after Stop, want 1", n)
	}
}

func TestSession_DialFailureIsTransportError(t *testing.T) {
	r := newRig()
	r.dialer.err = errors.New("connection refused")
	s := NewSession(r.cfg)
	defer s.Close()

	err := s.Start(context.Background(), stepContext)
	if !core.IsType(err, core.ErrTransport) {
		t.Fatalf("err = %v, want transport error", err)
	}
	if s.Status() != StatusError {
		t.Fatalf("status = %v", s.Status())
	}
	if r.src.closes.Load() != 1 || r.frames.closes.Load() != 1 || r.sink.closes.Load() != 1 {
		t.Fatalf("handles not released exactly once")
	}
	if r.stream.closes.Load() != 0 {
		t.Fatalf("stream closed but never opened")
	}
}

func TestSession_RemoteErrorTearsDown(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.stream.inbound <- ErrorMessage{Cause: errors.New("quota exceeded")}

	waitFor(t, "error status", func() bool { return s.Status() == StatusError })
	if !core.IsType(s.Err(), core.ErrTransport) {
		t.Fatalf("Err = %v", s.Err())
	}
	s.Stop()
	r.assertReleasedOnce(t)
}

func TestSession_RemoteCloseDisconnects(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.stream.inbound <- CloseMessage{Reason: "session timeout"}

	waitFor(t, "disconnect", func() bool { return s.Status() == StatusDisconnected })
	if s.Err() != nil {
		t.Fatalf("Err = %v, want nil", s.Err())
	}
	r.assertReleasedOnce(t)

	// A fresh start acquires new handles.
	r.cfg.Audio.(*fakeCapture).src = newFakeSource()
	r.dialer.stream = newFakeStream()
	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("status after restart = %v", s.Status())
	}
}

func TestSession_InboundAudioIsScheduledGapless(t *testing.T) {
	r := newRig()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.cfg.Now = func() time.Time { return base }
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// 100ms, 50ms, 200ms at 24kHz mono s16le.
	for _, n := range []int{4800, 2400, 9600} {
		r.stream.inbound <- AudioMessage{PCM: make([]byte, n), SampleRate: 24000}
	}

	waitFor(t, "three scheduled chunks", func() bool { return len(r.sink.snapshot()) == 3 })
	got := r.sink.snapshot()
	want := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(150 * time.Millisecond)}
	for i := range want {
		if !got[i].at.Equal(want[i]) {
			t.Fatalf("chunk %d start = %v, want %v", i, got[i].at, want[i])
		}
	}
}

func TestSession_StatusEvents(t *testing.T) {
	r := newRig()
	s := NewSession(r.cfg)

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Close()

	var seq []Status
	for ev := range s.Events() {
		if se, ok := ev.(StatusEvent); ok {
			seq = append(seq, se.To)
		}
	}
	want := []Status{StatusConnecting, StatusConnected, StatusDisconnected}
	if len(seq) != len(want) {
		t.Fatalf("status events = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("status events = %v, want %v", seq, want)
		}
	}
}

func TestSession_StartAfterCloseFails(t *testing.T) {
	s := NewSession(newRig().cfg)
	s.Close()
	if err := s.Start(context.Background(), stepContext); err == nil {
		t.Fatalf("Start after Close should fail")
	}
}

func TestSession_OnStatusAndSnapshot(t *testing.T) {
	r := newRig()
	r.dialer.err = errors.New("no route")
	s := NewSession(r.cfg)
	defer s.Close()

	var (
		mu   sync.Mutex
		seen []Status
		errs int
	)
	s.OnStatus(func(st Status, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
		if err != nil {
			errs++
		}
		// Listeners run outside the lock, so reading state must not deadlock.
		_ = s.Status()
	})

	if err := s.Start(context.Background(), stepContext); err == nil {
		t.Fatalf("Start should fail")
	}
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.Err == nil {
		t.Fatalf("snapshot = %+v, want error status", snap)
	}
	if snap.Generation == 0 {
		t.Fatalf("generation not advanced")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StatusConnecting || seen[1] != StatusError || errs != 1 {
		t.Fatalf("listener saw %v (errs=%d)", seen, errs)
	}
}

func TestSession_RestartWaitsForPreviousRelease(t *testing.T) {
	r := newRig()
	r.stream.hold = make(chan struct{})
	release := sync.OnceFunc(func() { close(r.stream.hold) })
	t.Cleanup(release)

	capture := r.cfg.Audio.(*fakeCapture)
	first := r.src
	var openedEarly atomic.Bool
	capture.onOpen = func() {
		if capture.opens.Load() > 1 && first.closes.Load() == 0 {
			openedEarly.Store(true)
		}
	}
	s := NewSession(r.cfg)
	defer s.Close()

	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	waitFor(t, "stream close", func() bool { return r.stream.closes.Load() == 1 })
	if st := s.Status(); st == StatusDisconnected {
		t.Fatalf("status = %v while handles are still held", st)
	}

	toggled := make(chan error, 1)
	go func() { toggled <- s.Start(context.Background(), stepContext) }()
	time.Sleep(20 * time.Millisecond)
	if n := capture.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times during teardown, want 1", n)
	}

	release()
	<-stopped
	if err := <-toggled; err != nil {
		t.Fatalf("Start during teardown: %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", s.Status())
	}
	r.assertReleasedOnce(t)

	capture.src = newFakeSource()
	r.dialer.stream = newFakeStream()
	if err := s.Start(context.Background(), stepContext); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.Status() != StatusConnected || capture.opens.Load() != 2 {
		t.Fatalf("status = %v opens = %d", s.Status(), capture.opens.Load())
	}
	if openedEarly.Load() {
		t.Fatalf("microphone reopened before the previous one was closed")
	}
}

func TestSession_StopWhileDialingAbortsStart(t *testing.T) {
	r := newRig()
	dialer := &hangingDialer{entered: make(chan struct{})}
	r.cfg.Dialer = dialer
	s := NewSession(r.cfg)
	defer s.Close()

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background(), stepContext) }()
	select {
	case <-dialer.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("Start never dialed")
	}
	if s.Status() != StatusConnecting {
		t.Fatalf("status = %v, want connecting", s.Status())
	}

	s.Stop()
	if s.Status() != StatusDisconnected {
		t.Fatalf("status after Stop = %v", s.Status())
	}
	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("Start after Stop = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Start still blocked in Dial after Stop")
	}
	if r.src.closes.Load() != 1 || r.frames.closes.Load() != 1 || r.sink.closes.Load() != 1 {
		t.Fatalf("handles not released exactly once")
	}
	if s.Err() != nil {
		t.Fatalf("Err = %v, want nil after a user stop", s.Err())
	}
}
