// Package lifecycle holds the gateway's drain state.
package lifecycle

import (
	"sync"
	"time"
)

// Lifecycle is shared by the readiness check, the live handler and shutdown.
// The zero value is serving.
type Lifecycle struct {
	mu    sync.RWMutex
	since time.Time
}

// StartDraining flips the gateway into drain mode. Later calls keep the first
// start time.
func (l *Lifecycle) StartDraining(now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.since.IsZero() {
		l.since = now
	}
}

func (l *Lifecycle) IsDraining() bool {
	_, ok := l.DrainingSince()
	return ok
}

// DrainingSince returns when draining began.
func (l *Lifecycle) DrainingSince() (time.Time, bool) {
	if l == nil {
		return time.Time{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.since, !l.since.IsZero()
}
