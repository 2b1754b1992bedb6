package stream

import (
	"sync"
	"time"
)

// Throttler rate-limits how often a captured frame may be forwarded upstream.
// It is a pure gate: frames arriving faster than the configured cadence are
// discarded and counted, never queued or delayed.
type Throttler struct {
	mu            sync.Mutex
	frameInterval time.Duration
	lastFrame     time.Time
	dropped       int64
}

// NewThrottler creates a throttler enforcing the given frames-per-second
// ceiling. FPS values below 1 are treated as 1.
func NewThrottler(targetFPS int) *Throttler {
	if targetFPS < 1 {
		targetFPS = 1
	}
	return &Throttler{frameInterval: time.Second / time.Duration(targetFPS)}
}

// ShouldSend reports whether a frame arriving at now may be forwarded, and
// resets the cadence clock when it may. Rejected frames increment the dropped
// counter.
func (t *Throttler) ShouldSend(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastFrame) >= t.frameInterval {
		t.lastFrame = now
		return true
	}
	t.dropped++
	return false
}

// Dropped returns the number of frames rejected so far.
func (t *Throttler) Dropped() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Reset clears the cadence clock and the dropped counter.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFrame = time.Time{}
	t.dropped = 0
}
