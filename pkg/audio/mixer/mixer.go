// Package mixer provides Console, a software implementation of [audio.Mixer].
//
// A Console holds named parameters in decibels. Output groups are bound to
// one or more parameters; the linear gain of a group is the product of the
// gains of its parameters, so a "SFX" group bound to both "MasterVolume" and
// "SfxVolume" follows both faders. Snapshots are named sets of parameter
// values; [Console.TransitionTo] ramps the parameters a snapshot mentions
// linearly in dB, advanced by [Console.Tick].
//
// Device backends read [Console.Gain] from their audio callback while the
// engine writes parameters from its tick goroutine, so all methods are safe
// for concurrent use.
package mixer

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Mixer = (*Console)(nil)

// Option configures a [Console] during construction.
type Option func(*Console)

// WithParam declares a parameter with its initial value in dB. Only declared
// parameters are accepted by [Console.SetParam].
func WithParam(name string, db float64) Option {
	return func(c *Console) {
		c.params[name] = db
	}
}

// WithGroup binds an output group to the parameters whose gains it follows.
// Undeclared parameters are declared at 0 dB.
func WithGroup(group string, params ...string) Option {
	return func(c *Console) {
		for _, p := range params {
			if _, ok := c.params[p]; !ok {
				c.params[p] = 0
			}
		}
		c.groups[group] = append(c.groups[group], params...)
	}
}

// WithSnapshot declares a snapshot. Parameters it mentions that are not yet
// declared are declared at 0 dB.
func WithSnapshot(name string, values map[string]float64) Option {
	return func(c *Console) {
		for p := range values {
			if _, ok := c.params[p]; !ok {
				c.params[p] = 0
			}
		}
		c.snapshots[name] = maps.Clone(values)
	}
}

// WithFloor sets the dB value treated as silence by [Console.Gain].
// Defaults to -80 dB.
func WithFloor(db float64) Option {
	return func(c *Console) { c.floor = db }
}

// ramp is one parameter's share of a running snapshot transition.
type ramp struct {
	from, to float64
}

// Console is a concrete [audio.Mixer] that keeps parameter state in memory.
type Console struct {
	mu        sync.Mutex
	params    map[string]float64
	groups    map[string][]string
	snapshots map[string]map[string]float64
	floor     float64

	active   string
	ramps    map[string]ramp
	duration time.Duration
	elapsed  time.Duration
}

// New creates a Console configured by opts.
func New(opts ...Option) *Console {
	c := &Console{
		params:    make(map[string]float64),
		groups:    make(map[string][]string),
		snapshots: make(map[string]map[string]float64),
		floor:     -80,
		ramps:     make(map[string]ramp),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetParam implements [audio.Mixer]. A direct write cancels any running
// snapshot ramp on the same parameter.
func (c *Console) SetParam(name string, db float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.params[name]; !ok {
		return false
	}
	c.params[name] = db
	delete(c.ramps, name)
	return true
}

// TransitionTo implements [audio.Mixer]. A new transition replaces the one
// in progress, starting from the current parameter values.
func (c *Console) TransitionTo(snapshot string, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	values, ok := c.snapshots[snapshot]
	if !ok {
		return false
	}
	c.active = snapshot
	clear(c.ramps)
	if d <= 0 {
		for p, v := range values {
			c.params[p] = v
		}
		c.duration, c.elapsed = 0, 0
		return true
	}
	for p, v := range values {
		c.ramps[p] = ramp{from: c.params[p], to: v}
	}
	c.duration, c.elapsed = d, 0
	slog.Debug("mixer: snapshot transition", "snapshot", snapshot, "duration", d, "params", len(values))
	return true
}

// Tick advances the running snapshot transition by dt.
func (c *Console) Tick(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ramps) == 0 || dt <= 0 {
		return
	}
	c.elapsed += dt
	t := audio.Clamp01(float64(c.elapsed) / float64(c.duration))
	for p, r := range c.ramps {
		c.params[p] = r.from + (r.to-r.from)*t
	}
	if t >= 1 {
		clear(c.ramps)
	}
}

// Transitioning reports whether a snapshot ramp is still running.
func (c *Console) Transitioning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ramps) > 0
}

// Param returns the current value of name in dB.
func (c *Console) Param(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.params[name]
	return v, ok
}

// Params returns a copy of every parameter value.
func (c *Console) Params() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.params)
}

// Snapshot returns the name of the last snapshot transitioned to.
func (c *Console) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Snapshots returns the declared snapshot names, sorted.
func (c *Console) Snapshots() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.snapshots))
}

// Gain returns the linear gain of an output group. Unknown groups, including
// the empty group, play at unity gain.
func (c *Console) Gain(group string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := 1.0
	for _, p := range c.groups[group] {
		db := c.params[p]
		if db <= c.floor {
			return 0
		}
		g *= audio.FromDB(db)
	}
	return g
}
