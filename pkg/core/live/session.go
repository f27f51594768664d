package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/imaging"
)

// Status is the session lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether the session holds devices and a stream.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusConnected
}

// DefaultFrameInterval is the video producer cadence.
const DefaultFrameInterval = time.Second

// Config wires a Session to its devices and transport.
type Config struct {
	Dialer   Dialer
	Audio    AudioCapture
	Video    VideoCapture // nil runs an audio-only session
	Playback AudioPlayback

	FrameInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Event is emitted on the Events channel.
type Event interface {
	eventType() string
}

// StatusEvent reports a status transition. Err is set for StatusError.
type StatusEvent struct {
	From Status
	To   Status
	Err  error
}

// LevelEvent reports the microphone level of one captured chunk.
type LevelEvent struct {
	RMS float64
}

// PlaybackEvent reports where an inbound chunk was scheduled.
type PlaybackEvent struct {
	Start    time.Time
	Duration time.Duration
}

func (StatusEvent) eventType() string   { return "status" }
func (LevelEvent) eventType() string    { return "level" }
func (PlaybackEvent) eventType() string { return "playback" }

// Session is the live assistant state machine. All methods are safe for
// concurrent use.
type Session struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	status Status
	err    error
	gen    uint64
	run    *run
	last   *run
	closed bool

	listeners []func(Status, error)
	pending   []StatusEvent

	events chan Event
	wg     sync.WaitGroup
}

// State is a point-in-time view of a Session.
type State struct {
	Status     Status
	Err        error
	Generation uint64
}

// NewSession creates a disconnected session.
func NewSession(cfg Config) *Session {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		log:    log,
		now:    now,
		events: make(chan Event, 64),
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error that put the session into StatusError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns the status, error and generation under one lock.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Status: s.status, Err: s.err, Generation: s.gen}
}

// OnStatus registers fn to be called after every status transition. Listeners
// run outside the session lock, in transition order per caller.
func (s *Session) OnStatus(fn func(Status, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// unlock releases s.mu and then notifies listeners of queued transitions.
func (s *Session) unlock() {
	pending := s.pending
	s.pending = nil
	ls := s.listeners
	s.mu.Unlock()
	for _, ev := range pending {
		for _, fn := range ls {
			fn(ev.To, ev.Err)
		}
	}
}

// Events returns the channel for receiving session events. Events are dropped
// when the channel is full.
func (s *Session) Events() <-chan Event {
	return s.events
}

// run holds everything one Start acquired.
type run struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	sched  Scheduler

	mu      sync.Mutex
	torn    bool
	handles []*handle
	mic     AudioSource
	cam     FrameSource
	spk     AudioSink
	stream  Stream

	once sync.Once
	done chan struct{} // closed once every handle is released
}

// adopt registers c for release at teardown. If the run was already torn
// down, c is released immediately and adopt returns false.
func (r *run) adopt(name string, c closer) bool {
	h := &handle{name: name, c: c}
	r.mu.Lock()
	if r.torn {
		r.mu.Unlock()
		_ = h.release()
		return false
	}
	r.handles = append(r.handles, h)
	r.mu.Unlock()
	return true
}

func (r *run) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torn
}

// teardown cancels producers and releases handles in reverse acquisition
// order. Safe to call any number of times from any goroutine; every call
// returns only after the handles are released.
func (r *run) teardown(log *slog.Logger) {
	r.once.Do(func() {
		defer close(r.done)
		r.cancel()
		r.mu.Lock()
		r.torn = true
		hs := r.handles
		r.handles = nil
		r.mu.Unlock()
		for i := len(hs) - 1; i >= 0; i-- {
			if err := hs[i].release(); err != nil {
				log.Warn("live: release failed", "handle", hs[i].name, "error", err)
			}
		}
	})
	<-r.done
}

// released waits until r has released its handles or ctx is done.
func (r *run) released(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start opens devices and the stream for lc. Calling Start while a session is
// connecting or connected stops it instead. Devices are opened only after the
// previous run has released its own. Stop during connecting aborts the
// acquisition and Start returns nil. Failures set StatusError and are also
// returned.
func (s *Session) Start(ctx context.Context, lc Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("live: session closed")
	}
	if s.status.Active() {
		s.mu.Unlock()
		s.Stop()
		return nil
	}
	s.gen++
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{gen: s.gen, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	prev := s.last
	s.run, s.last = r, r
	s.setStatusLocked(StatusConnecting, nil)
	s.unlock()

	// Acquisition ends with the caller's ctx or with this run.
	acqCtx, acqCancel := context.WithCancel(ctx)
	defer acqCancel()
	defer context.AfterFunc(runCtx, acqCancel)()

	abort := func(err error) error {
		if r.stopped() {
			return nil
		}
		return s.fail(r, err)
	}

	if err := prev.released(acqCtx); err != nil {
		return abort(fmt.Errorf("live: previous session still releasing devices: %w", err))
	}

	mic, err := s.cfg.Audio.OpenCapture(acqCtx, InputFormat)
	if err != nil {
		return abort(core.NewMediaAccessError("microphone", err))
	}
	if !r.adopt("microphone", mic) {
		return nil
	}

	var cam FrameSource
	if s.cfg.Video != nil {
		cam, err = s.cfg.Video.OpenVideo(acqCtx)
		if err != nil {
			return abort(core.NewMediaAccessError("camera", err))
		}
		if !r.adopt("camera", cam) {
			return nil
		}
	}

	spk, err := s.cfg.Playback.OpenPlayback(OutputFormat)
	if err != nil {
		return abort(core.NewMediaAccessError("speaker", err))
	}
	if !r.adopt("speaker", spk) {
		return nil
	}

	stream, err := s.cfg.Dialer.Dial(acqCtx, lc)
	if err != nil {
		return abort(core.NewTransportError("dial", err))
	}
	if !r.adopt("stream", stream) {
		return nil
	}

	r.mu.Lock()
	r.mic, r.cam, r.spk, r.stream = mic, cam, spk, stream
	r.mu.Unlock()

	s.mu.Lock()
	if s.run != r || r.stopped() {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(StatusConnected, nil)
	s.wg.Go(func() { s.audioLoop(r) })
	if cam != nil {
		s.wg.Go(func() { s.videoLoop(r) })
	}
	s.wg.Go(func() { s.recvLoop(r) })
	s.unlock()

	s.log.Info("live: session connected", "generation", r.gen, "goal", lc.ProjectGoal, "step", lc.StepTitle)
	return nil
}

// Stop tears down any active run and returns once its handles are released.
// The session reports disconnected only after that. It is safe from any
// state; on a disconnected session it does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	r, last := s.run, s.last
	s.run = nil
	if r != nil {
		s.gen++
	}
	s.unlock()

	if r != nil {
		r.teardown(s.log)
	}
	if last != nil {
		// A run ended by fail, finish or another Stop may still be releasing.
		<-last.done
	}

	s.mu.Lock()
	if s.run == nil && s.status != StatusDisconnected {
		s.setStatusLocked(StatusDisconnected, nil)
	}
	s.unlock()
}

// Close stops the session, waits for its goroutines and closes Events.
func (s *Session) Close() {
	s.Stop()
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// fail tears r down and, if r is still the current run, records err.
func (s *Session) fail(r *run, err error) error {
	r.teardown(s.log)
	s.mu.Lock()
	defer s.unlock()
	if s.run != r {
		return err
	}
	s.run = nil
	s.gen++
	s.setStatusLocked(StatusError, err)
	s.log.Warn("live: session failed", "generation", r.gen, "error", err)
	return err
}

// finish tears r down after an orderly remote close.
func (s *Session) finish(r *run, reason string) {
	r.teardown(s.log)
	s.mu.Lock()
	defer s.unlock()
	if s.run != r {
		return
	}
	s.run = nil
	s.gen++
	s.setStatusLocked(StatusDisconnected, nil)
	s.log.Info("live: session closed by remote", "generation", r.gen, "reason", reason)
}

func (s *Session) current(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run == r && s.gen == r.gen
}

func (s *Session) audioLoop(r *run) {
	for {
		pcm, err := r.mic.Read(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.fail(r, core.NewMediaAccessError("microphone", err))
			return
		}
		if len(pcm) == 0 {
			continue
		}
		s.emit(LevelEvent{RMS: CalculateRMSEnergy(pcm)})
		if err := r.stream.Send(NewAudioChunk(pcm)); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.fail(r, core.NewTransportError("send", err))
			return
		}
	}
}

func (s *Session) videoLoop(r *run) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := r.cam.Snapshot(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.log.Debug("live: frame dropped", "error", err)
			continue
		}
		img, err := imaging.Encode(frame, imaging.FrameMaxDimension, imaging.FrameQuality)
		if err != nil {
			s.log.Debug("live: frame encode failed", "error", err)
			continue
		}
		if err := r.stream.Send(NewVideoFrame(img)); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.fail(r, core.NewTransportError("send", err))
			return
		}
	}
}

func (s *Session) recvLoop(r *run) {
	for {
		msg, err := r.stream.Recv()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.fail(r, core.NewTransportError("recv", err))
			return
		}
		if !s.current(r) {
			return
		}
		switch m := msg.(type) {
		case AudioMessage:
			if err := s.play(r, m); err != nil {
				s.fail(r, core.NewMediaAccessError("speaker", err))
				return
			}
		case ErrorMessage:
			s.fail(r, core.NewTransportError("remote", m.Cause))
			return
		case CloseMessage:
			s.finish(r, m.Reason)
			return
		default:
			s.log.Error("live: unknown inbound message", "type", fmt.Sprintf("%T", msg))
			s.finish(r, "unknown message")
			return
		}
	}
}

func (s *Session) play(r *run, m AudioMessage) error {
	if len(m.PCM) == 0 {
		return nil
	}
	d := Format{SampleRate: m.SampleRate, Channels: 1}.Duration(len(m.PCM))
	start := r.sched.Schedule(s.now(), d)
	if err := r.spk.Enqueue(start, m.PCM); err != nil {
		return err
	}
	s.emit(PlaybackEvent{Start: start, Duration: d})
	return nil
}

func (s *Session) setStatusLocked(to Status, err error) {
	from := s.status
	s.status = to
	s.err = err
	if from != to || err != nil {
		ev := StatusEvent{From: from, To: to, Err: err}
		s.pending = append(s.pending, ev)
		s.emitLocked(ev)
	}
}

func (s *Session) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(e)
}

func (s *Session) emitLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}
