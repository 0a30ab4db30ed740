// Package mock provides in-memory mock implementations of the collaborator
// interfaces in package audio ([audio.Output], [audio.Device], [audio.Loader],
// [audio.Mixer], [audio.Store], [audio.Clock], [audio.Target]) for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record method calls so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	clock := &mock.Clock{}
//	out := mock.NewOutput(clock)
//	loader := mock.NewLoader()
//	loader.SetClip("click", 50*time.Millisecond)
//	loader.AutoComplete = true
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Output)(nil)
	_ audio.Device = (*Device)(nil)
	_ audio.Loader = (*Loader)(nil)
	_ audio.LoadOp = (*LoadOp)(nil)
	_ audio.Mixer  = (*Mixer)(nil)
	_ audio.Store  = (*Store)(nil)
	_ audio.Clock  = (*Clock)(nil)
	_ audio.Target = (*Target)(nil)
)

// ─── Clock ───────────────────────────────────────────────────────────────────

// Clock is a manually advanced [audio.Clock].
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements [audio.Clock].
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// ─── Target ──────────────────────────────────────────────────────────────────

// Target is a movable [audio.Target].
type Target struct {
	mu  sync.Mutex
	Pos audio.Vec3
}

// Position implements [audio.Target].
func (t *Target) Position() audio.Vec3 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Pos
}

// Move sets the target's position.
func (t *Target) Move(p audio.Vec3) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Pos = p
}

// ─── Device ──────────────────────────────────────────────────────────────────

// Device is a mock [audio.Device]. It keeps every property that was set and
// models play state: Play starts it, Stop ends it, Pause/Resume toggle it.
// Set Finished to simulate the backend reaching the end of the clip.
type Device struct {
	mu sync.Mutex

	// Name is the name passed to [Output.NewDevice].
	Name string

	clip        *audio.Clip
	loop        bool
	priority    int
	output      string
	volume      float64
	pitch       float64
	startOffset time.Duration
	spatial     audio.Spatial
	position    audio.Vec3
	playing     bool
	paused      bool

	// Finished, when true, makes IsPlaying report false even while started.
	Finished bool

	// CallCountPlay records how many times Play was called.
	CallCountPlay int
	// CallCountStop records how many times Stop was called.
	CallCountStop int
	// CallCountPause records how many times Pause was called.
	CallCountPause int
	// CallCountResume records how many times Resume was called.
	CallCountResume int
}

func (d *Device) SetClip(c *audio.Clip) { d.mu.Lock(); d.clip = c; d.mu.Unlock() }
func (d *Device) Clip() *audio.Clip     { d.mu.Lock(); defer d.mu.Unlock(); return d.clip }
func (d *Device) SetLoop(l bool)        { d.mu.Lock(); d.loop = l; d.mu.Unlock() }
func (d *Device) SetPriority(p int)     { d.mu.Lock(); d.priority = p; d.mu.Unlock() }
func (d *Device) SetOutput(g string)    { d.mu.Lock(); d.output = g; d.mu.Unlock() }
func (d *Device) SetVolume(v float64)   { d.mu.Lock(); d.volume = v; d.mu.Unlock() }
func (d *Device) Volume() float64       { d.mu.Lock(); defer d.mu.Unlock(); return d.volume }
func (d *Device) SetPitch(p float64)    { d.mu.Lock(); d.pitch = p; d.mu.Unlock() }
func (d *Device) Pitch() float64        { d.mu.Lock(); defer d.mu.Unlock(); return d.pitch }

func (d *Device) SetStartOffset(o time.Duration) { d.mu.Lock(); d.startOffset = o; d.mu.Unlock() }
func (d *Device) SetSpatial(s audio.Spatial)     { d.mu.Lock(); d.spatial = s; d.mu.Unlock() }
func (d *Device) SetPosition(p audio.Vec3)       { d.mu.Lock(); d.position = p; d.mu.Unlock() }
func (d *Device) Position() audio.Vec3           { d.mu.Lock(); defer d.mu.Unlock(); return d.position }

// Play implements [audio.Device].
func (d *Device) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountPlay++
	d.playing = true
	d.paused = false
	d.Finished = false
}

// Stop implements [audio.Device].
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.playing = false
	d.paused = false
}

// Pause implements [audio.Device].
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountPause++
	if d.playing {
		d.paused = true
	}
}

// Resume implements [audio.Device].
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountResume++
	d.paused = false
}

// IsPlaying implements [audio.Device].
func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing && !d.paused && !d.Finished
}

// Paused reports whether the device is started but paused.
func (d *Device) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing && d.paused
}

// Loop returns the last value passed to SetLoop.
func (d *Device) Loop() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.loop }

// Priority returns the last value passed to SetPriority.
func (d *Device) Priority() int { d.mu.Lock(); defer d.mu.Unlock(); return d.priority }

// Output returns the last value passed to SetOutput.
func (d *Device) Output() string { d.mu.Lock(); defer d.mu.Unlock(); return d.output }

// StartOffset returns the last value passed to SetStartOffset.
func (d *Device) StartOffset() time.Duration { d.mu.Lock(); defer d.mu.Unlock(); return d.startOffset }

// Spatial returns the last value passed to SetSpatial.
func (d *Device) Spatial() audio.Spatial { d.mu.Lock(); defer d.mu.Unlock(); return d.spatial }

// Finish marks the device as having reached the end of its clip.
func (d *Device) Finish() { d.mu.Lock(); d.Finished = true; d.mu.Unlock() }

// ─── Output ──────────────────────────────────────────────────────────────────

// Output is a mock [audio.Output]. Devices it creates are retained in
// Devices in creation order.
type Output struct {
	mu    sync.Mutex
	clock audio.Clock

	// Devices holds every device returned by NewDevice.
	Devices []*Device

	// CloseError is returned by Close.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewOutput returns an Output whose device clock is clock. A nil clock
// yields a frozen clock at zero.
func NewOutput(clock audio.Clock) *Output {
	if clock == nil {
		clock = &Clock{}
	}
	return &Output{clock: clock}
}

// Now implements [audio.Clock].
func (o *Output) Now() time.Duration { return o.clock.Now() }

// NewDevice implements [audio.Output].
func (o *Output) NewDevice(name string) audio.Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := &Device{Name: name, volume: 1, pitch: 1}
	o.Devices = append(o.Devices, d)
	return d
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return o.CloseError
}

// DeviceCount returns the number of devices created so far.
func (o *Output) DeviceCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Devices)
}

// ─── Loader ──────────────────────────────────────────────────────────────────

// ErrMockLoad is the error assigned to loads failed via [Loader.Fail] or for
// unknown keys when AutoComplete is set.
var ErrMockLoad = errors.New("mock: load failed")

// LoadOp is a mock [audio.LoadOp] completed by its [Loader].
type LoadOp struct {
	mu       sync.Mutex
	key      string
	status   audio.LoadStatus
	clip     *audio.Clip
	err      error
	progress float64
	released bool
}

func (op *LoadOp) Done() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status == audio.LoadSucceeded || op.status == audio.LoadFailed
}

func (op *LoadOp) Progress() float64 {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.progress
}

func (op *LoadOp) Status() audio.LoadStatus {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

func (op *LoadOp) Result() *audio.Clip {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.clip
}

func (op *LoadOp) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

func (op *LoadOp) Release() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.released = true
}

// Released reports whether Release was called.
func (op *LoadOp) Released() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.released
}

// Key returns the asset key the op was started for.
func (op *LoadOp) Key() string { return op.key }

// SetProgress sets the value reported by Progress.
func (op *LoadOp) SetProgress(p float64) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.progress = p
}

func (op *LoadOp) complete(c *audio.Clip) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = audio.LoadSucceeded
	op.clip = c
	op.progress = 1
}

func (op *LoadOp) fail(err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = audio.LoadFailed
	op.err = err
	op.progress = 1
}

// Loader is a mock [audio.Loader]. Register content with SetClip; loads stay
// pending until Complete or Fail is called, unless AutoComplete is set.
type Loader struct {
	mu sync.Mutex

	clips map[string]*audio.Clip

	// AutoComplete completes (or, for unknown keys, fails) loads immediately.
	AutoComplete bool

	// Ops holds every op returned by Load, in call order.
	Ops []*LoadOp

	// LoadCalls records the key of every Load call.
	LoadCalls []string
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{clips: make(map[string]*audio.Clip)}
}

// SetClip registers content for key with the given length.
func (l *Loader) SetClip(key string, length time.Duration) *audio.Clip {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := &audio.Clip{Key: key, Length: length}
	l.clips[key] = c
	return c
}

// Load implements [audio.Loader].
func (l *Loader) Load(_ context.Context, key string) audio.LoadOp {
	l.mu.Lock()
	defer l.mu.Unlock()
	op := &LoadOp{key: key, status: audio.LoadLoading}
	l.Ops = append(l.Ops, op)
	l.LoadCalls = append(l.LoadCalls, key)
	if l.AutoComplete {
		if c, ok := l.clips[key]; ok {
			op.complete(c)
		} else {
			op.fail(ErrMockLoad)
		}
	}
	return op
}

// Complete finishes every pending op for key successfully. Unknown keys get a
// zero-length clip.
func (l *Loader) Complete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clips[key]
	if !ok {
		c = &audio.Clip{Key: key}
		l.clips[key] = c
	}
	for _, op := range l.Ops {
		if op.key == key && op.Status() == audio.LoadLoading {
			op.complete(c)
		}
	}
}

// CompleteAll finishes every pending op.
func (l *Loader) CompleteAll() {
	l.mu.Lock()
	keys := make([]string, 0, len(l.Ops))
	for _, op := range l.Ops {
		if op.Status() == audio.LoadLoading {
			keys = append(keys, op.key)
		}
	}
	l.mu.Unlock()
	for _, k := range keys {
		l.Complete(k)
	}
}

// Fail fails every pending op for key with [ErrMockLoad].
func (l *Loader) Fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range l.Ops {
		if op.key == key && op.Status() == audio.LoadLoading {
			op.fail(ErrMockLoad)
		}
	}
}

// LoadCount returns how many times Load was called for key.
func (l *Loader) LoadCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, k := range l.LoadCalls {
		if k == key {
			n++
		}
	}
	return n
}

// ─── Mixer ───────────────────────────────────────────────────────────────────

// SnapshotCall records one TransitionTo call.
type SnapshotCall struct {
	Name     string
	Duration time.Duration
}

// Mixer is a mock [audio.Mixer].
type Mixer struct {
	mu sync.Mutex

	// Params holds the last dB value set per parameter. Only parameters
	// listed in Known are accepted when Known is non-nil.
	Params map[string]float64

	// Known restricts the accepted parameter names. Nil accepts all.
	Known map[string]bool

	// Snapshots restricts the accepted snapshot names. Nil accepts all.
	Snapshots map[string]bool

	// Transitions records every accepted TransitionTo call.
	Transitions []SnapshotCall
}

// SetParam implements [audio.Mixer].
func (m *Mixer) SetParam(name string, db float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Known != nil && !m.Known[name] {
		return false
	}
	if m.Params == nil {
		m.Params = make(map[string]float64)
	}
	m.Params[name] = db
	return true
}

// TransitionTo implements [audio.Mixer].
func (m *Mixer) TransitionTo(name string, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Snapshots != nil && !m.Snapshots[name] {
		return false
	}
	m.Transitions = append(m.Transitions, SnapshotCall{Name: name, Duration: d})
	return true
}

// Param returns the stored dB value for name.
func (m *Mixer) Param(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Params[name]
	return v, ok
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is a mock [audio.Store].
type Store struct {
	mu sync.Mutex

	// Values holds the stored preferences.
	Values map[string]float64

	// SaveError is returned by Save.
	SaveError error

	// CallCountSave records how many times Save was called.
	CallCountSave int
}

// Float implements [audio.Store].
func (s *Store) Float(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// SetFloat implements [audio.Store].
func (s *Store) SetFloat(key string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]float64)
	}
	s.Values[key] = v
}

// Save implements [audio.Store].
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountSave++
	return s.SaveError
}
