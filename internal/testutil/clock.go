package testutil

import (
	"sync"
	"time"
)

// DeterministicClock provides a thread-safe logical clock for tests.
//
// Each call to Now advances by a fixed stride from a fixed epoch, so the
// same scenario produces byte-identical timestamps in audit records and
// golden snapshots. It can be reset for test reuse.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu     sync.Mutex
	base   time.Time
	stride time.Duration
	n      int64
}

// Epoch is the starting instant of every DeterministicClock.
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewDeterministicClock creates a clock at Epoch that advances one second
// per Now call. The first call returns Epoch + 1s.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{base: Epoch, stride: time.Second}
}

// Now advances the clock by one stride and returns the new instant.
//
// Implements workflow.Clock. Monotonic: never returns the same instant twice.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.base.Add(time.Duration(c.n) * c.stride)
}

// Current returns the last instant handed out without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Duration(c.n) * c.stride)
}

// Reset rewinds the clock to Epoch. After Reset, the next Now call returns
// Epoch + 1s again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
