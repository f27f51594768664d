// Package sessions tracks open /v1/live bridges so shutdown can warn, cancel
// and wait for them.
package sessions

import (
	"context"
	"sync"
	"time"
)

// Handle is what the tracker can do to a session.
type Handle struct {
	Principal string
	Cancel    func()
	Warn      func(code, message string) error
}

// Info describes one open session.
type Info struct {
	ID        string
	Principal string
	Started   time.Time
}

type Tracker struct {
	mu   sync.Mutex
	open map[string]*entry
	wg   sync.WaitGroup
	now  func() time.Time
}

type entry struct {
	handle  Handle
	started time.Time
	done    sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{open: make(map[string]*entry), now: time.Now}
}

// Register adds a session. Registering an id twice replaces the older entry.
// The returned func is idempotent.
func (t *Tracker) Register(id string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}
	e := &entry{handle: h, started: t.clock()}

	t.mu.Lock()
	if t.open == nil {
		t.open = make(map[string]*entry)
	}
	prev := t.open[id]
	t.open[id] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if prev != nil {
		t.release(id, prev)
	}
	return func() { t.release(id, e) }
}

func (t *Tracker) release(id string, e *entry) {
	e.done.Do(func() {
		t.mu.Lock()
		if t.open[id] == e {
			delete(t.open, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// CountFor returns the open sessions of one principal.
func (t *Tracker) CountFor(principal string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.open {
		if e.handle.Principal == principal {
			n++
		}
	}
	return n
}

// Snapshot lists the open sessions.
func (t *Tracker) Snapshot() []Info {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Info, 0, len(t.open))
	for id, e := range t.open {
		out = append(out, Info{ID: id, Principal: e.handle.Principal, Started: e.started})
	}
	return out
}

func (t *Tracker) handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.open))
	for _, e := range t.open {
		out = append(out, e.handle)
	}
	return out
}

// WarnAll sends a warning to every session and returns how many were
// delivered.
func (t *Tracker) WarnAll(code, message string) (delivered int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Warn == nil {
			continue
		}
		if h.Warn(code, message) == nil {
			delivered++
		}
	}
	return delivered
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every session has unregistered or ctx ends. It reports
// whether all sessions finished.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
