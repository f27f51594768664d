package session

import (
	"time"

	"golang.org/x/time/rate"
)

// frameLimiter caps inbound audio and video frames per second. Bursts of up to
// burstSeconds worth of frames are absorbed.
type frameLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time
	// notified is set once the client has been told about the current run of
	// dropped frames.
	notified bool
}

func newFrameLimiter(fps, burstSeconds int, now func() time.Time) *frameLimiter {
	if fps <= 0 {
		return nil
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	if now == nil {
		now = time.Now
	}
	return &frameLimiter{bucket: rate.NewLimiter(rate.Limit(fps), fps*burstSeconds), now: now}
}

// Allow reports whether a frame may pass, and whether the caller should tell
// the client about a new run of drops.
func (l *frameLimiter) Allow() (ok, notify bool) {
	if l == nil {
		return true, false
	}
	if l.bucket.AllowN(l.now(), 1) {
		l.notified = false
		return true, false
	}
	notify = !l.notified
	l.notified = true
	return false, notify
}
