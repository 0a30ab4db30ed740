package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/soundcue/pkg/audio"
)

var _ audio.Store = (*Store)(nil)

// Store is an [audio.Store] backed by a chain of stores. Writes go to every
// store so a fallback always holds the latest values; Save persists through
// the first store that succeeds. Reads prefer earlier stores.
type Store struct {
	group *FallbackGroup[audio.Store]
}

// NewStore returns a Store with primary as its first backend.
func NewStore(primary audio.Store, primaryName string, cfg FallbackConfig) *Store {
	return &Store{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend. Values already set on earlier backends are
// copied only by later SetFloat calls.
func (s *Store) AddFallback(name string, st audio.Store) {
	s.group.AddFallback(name, st)
}

// Float implements [audio.Store].
func (s *Store) Float(key string) (float64, bool) {
	for _, e := range s.group.entries {
		if v, ok := e.value.Float(key); ok {
			return v, true
		}
	}
	return 0, false
}

// SetFloat implements [audio.Store].
func (s *Store) SetFloat(key string, v float64) {
	for _, e := range s.group.entries {
		e.value.SetFloat(key, v)
	}
}

// Save implements [audio.Store].
func (s *Store) Save() error {
	return s.group.Execute(audio.Store.Save)
}

// Ping reports the store unhealthy when no backend can accept a Save: every
// breaker is open or every pingable backend fails its ping.
func (s *Store) Ping(ctx context.Context) error {
	var errs []error
	for _, e := range s.group.entries {
		if e.breaker.State() == StateOpen {
			errs = append(errs, fmt.Errorf("%s: %w", e.breaker.Name(), ErrCircuitOpen))
			continue
		}
		p, ok := e.value.(interface{ Ping(context.Context) error })
		if !ok {
			return nil
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.breaker.Name(), err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

// States returns the breaker state per backend name.
func (s *Store) States() map[string]State {
	out := make(map[string]State, s.group.Len())
	s.group.Each(func(name string, _ audio.Store, st State) {
		out[name] = st
	})
	return out
}

// Close closes every backend that can be closed.
func (s *Store) Close() error {
	var errs []error
	for _, e := range s.group.entries {
		if c, ok := e.value.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.breaker.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
