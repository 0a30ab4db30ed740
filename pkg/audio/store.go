package audio

import (
	"sync"
	"time"
)

// Store persists float preferences (bus volumes) across sessions.
type Store interface {
	// Float returns the stored value for key and whether it exists.
	Float(key string) (float64, bool)
	SetFloat(key string, v float64)
	// Save flushes pending writes. Implementations must not block the
	// caller on network I/O.
	Save() error
}

// Clock is a monotonic time source. The zero point is arbitrary.
type Clock interface {
	Now() time.Duration
}

// WallClock measures real time elapsed since it was created.
type WallClock struct {
	once  sync.Once
	start time.Time
}

// NewWallClock returns a clock started at the current instant.
func NewWallClock() *WallClock {
	c := &WallClock{}
	c.once.Do(func() { c.start = time.Now() })
	return c
}

// Now implements [Clock].
func (c *WallClock) Now() time.Duration {
	c.once.Do(func() { c.start = time.Now() })
	return time.Since(c.start)
}
