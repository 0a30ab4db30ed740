// Package prefs provides [audio.Store] implementations for persisting bus
// volumes between sessions.
//
// [Memory] keeps values for the lifetime of the process. [File] keeps them in
// a YAML document on disk and writes it on [File.Save]. A PostgreSQL-backed
// store lives in the postgres sub-package.
package prefs

import (
	"errors"
	"maps"
	"sync"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// ErrNotFound is returned by lookups for a key that was never stored.
var ErrNotFound = errors.New("prefs: not found")

// Compile-time interface assertions.
var (
	_ audio.Store = (*Memory)(nil)
	_ audio.Store = (*File)(nil)
)

// Get returns the value stored under key, or [ErrNotFound].
func Get(s audio.Store, key string) (float64, error) {
	v, ok := s.Float(key)
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// Memory is an in-process store. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]float64
	saves  int
}

// NewMemory returns a store seeded with a copy of initial.
func NewMemory(initial map[string]float64) *Memory {
	m := &Memory{values: make(map[string]float64, len(initial))}
	maps.Copy(m.values, initial)
	return m
}

// Float implements [audio.Store].
func (m *Memory) Float(key string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// SetFloat implements [audio.Store].
func (m *Memory) SetFloat(key string, v float64) {
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
}

// Save implements [audio.Store]. It only counts the call.
func (m *Memory) Save() error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Values returns a snapshot of every stored value.
func (m *Memory) Values() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}
