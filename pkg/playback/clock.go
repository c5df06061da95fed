package playback

import (
	"sync"
	"time"
)

// Clock reports the current playback time as an offset from an arbitrary
// epoch. It must be monotonic.
type Clock interface {
	Now() time.Duration
}

// SystemClock is a Clock backed by the monotonic wall clock.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a clock whose epoch is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.epoch)
}

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewFakeClock returns a FakeClock reading start.
func NewFakeClock(start time.Duration) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
