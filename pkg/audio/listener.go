package audio

import "sync"

// Listener is a [Target] moved from outside the engine, typically by the
// host's camera. It is safe for concurrent use; output backends sample it
// from their render goroutine.
type Listener struct {
	mu  sync.RWMutex
	pos Vec3
}

// Position implements [Target].
func (l *Listener) Position() Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pos
}

// Move sets the listener position.
func (l *Listener) Move(p Vec3) {
	l.mu.Lock()
	l.pos = p
	l.mu.Unlock()
}
