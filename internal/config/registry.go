package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DeviceEnv carries runtime collaborators a device backend may need that do
// not come from its configuration block.
type DeviceEnv struct {
	// Gain returns the linear gain of an output group. May be nil.
	Gain func(group string) float64
	// Listener is the position 3D voices are heard from. May be nil.
	Listener audio.Target
}

// LoaderFactory builds an asset loader.
type LoaderFactory func(ctx context.Context, entry ProviderEntry) (audio.Loader, error)

// DeviceFactory builds an audio output.
type DeviceFactory func(ctx context.Context, entry ProviderEntry, env DeviceEnv) (audio.Output, error)

// PrefsFactory builds a preference store.
type PrefsFactory func(ctx context.Context, entry ProviderEntry) (audio.Store, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	loader map[string]LoaderFactory
	device map[string]DeviceFactory
	prefs  map[string]PrefsFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		loader: make(map[string]LoaderFactory),
		device: make(map[string]DeviceFactory),
		prefs:  make(map[string]PrefsFactory),
	}
}

// RegisterLoader registers a loader factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLoader(name string, factory LoaderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader[name] = factory
}

// RegisterDevice registers an output factory under name.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device[name] = factory
}

// RegisterPrefs registers a preference store factory under name.
func (r *Registry) RegisterPrefs(name string, factory PrefsFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[name] = factory
}

// CreateLoader instantiates a loader using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLoader(ctx context.Context, entry ProviderEntry) (audio.Loader, error) {
	r.mu.RLock()
	factory, ok := r.loader[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: loader/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateDevice instantiates an output using the factory registered under entry.Name.
func (r *Registry) CreateDevice(ctx context.Context, entry ProviderEntry, env DeviceEnv) (audio.Output, error) {
	r.mu.RLock()
	factory, ok := r.device[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry, env)
}

// CreatePrefs instantiates a preference store using the factory registered under entry.Name.
func (r *Registry) CreatePrefs(ctx context.Context, entry ProviderEntry) (audio.Store, error) {
	r.mu.RLock()
	factory, ok := r.prefs[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: prefs/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"loader": slices.Sorted(maps.Keys(r.loader)),
		"device": slices.Sorted(maps.Keys(r.device)),
		"prefs":  slices.Sorted(maps.Keys(r.prefs)),
	}
}
