package live

import (
	"sync"
	"time"
)

// Scheduler assigns gapless, non-overlapping start times to inbound audio
// chunks in arrival order. The clock never moves backwards.
type Scheduler struct {
	mu    sync.Mutex
	clock time.Time
}

// Schedule returns the start time for a chunk of duration d arriving at now:
// max(clock, now). The clock then advances to start+d.
func (s *Scheduler) Schedule(now time.Time, d time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock
	if now.After(start) {
		start = now
	}
	s.clock = start.Add(d)
	return start
}

// Clock returns the end of the last scheduled chunk.
func (s *Scheduler) Clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}
