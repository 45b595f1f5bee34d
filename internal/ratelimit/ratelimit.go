// Package ratelimit implements a per-session sliding-window request counter.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the time-ordered log of admitted requests for one session.
// The zero value is ready to use.
type Window struct {
	mu    sync.Mutex
	stamp []time.Time
}

// Len returns the number of timestamps currently held, without trimming.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stamp)
}

type Limiter struct {
	Window time.Duration
	Max    int
	Now    func() time.Time
}

func New(window time.Duration, max int) *Limiter {
	return &Limiter{Window: window, Max: max, Now: time.Now}
}

// Admit trims expired timestamps from w and records a new request if fewer
// than Max remain. A rejected request leaves w unchanged apart from the trim.
func (l *Limiter) Admit(w *Window) bool {
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.stamp[:0]
	for _, t := range w.stamp {
		if now.Sub(t) < l.Window {
			live = append(live, t)
		}
	}
	w.stamp = live

	if len(w.stamp) >= l.Max {
		return false
	}
	w.stamp = append(w.stamp, now)
	return true
}

func (l *Limiter) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
