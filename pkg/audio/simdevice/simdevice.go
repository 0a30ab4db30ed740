// Package simdevice is a headless [audio.Output]. Its devices produce no
// sound; they advance a virtual read head against a clock so that a clip
// finishes after its length divided by pitch, honouring loop, start offset
// and pause. It backs the "sim" device provider and integration tests.
package simdevice

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Output)(nil)
	_ audio.Device = (*Device)(nil)
)

// Output creates simulated devices sharing one clock.
type Output struct {
	clock audio.Clock

	mu      sync.Mutex
	devices []*Device
	closed  bool
}

// New returns an Output driven by clock. A nil clock uses the wall clock.
func New(clock audio.Clock) *Output {
	if clock == nil {
		clock = audio.NewWallClock()
	}
	return &Output{clock: clock}
}

// Now implements [audio.Clock].
func (o *Output) Now() time.Duration { return o.clock.Now() }

// NewDevice implements [audio.Output].
func (o *Output) NewDevice(name string) audio.Device {
	d := &Device{name: name, clock: o.clock, volume: 1, pitch: 1}
	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()
	return d
}

// Playing returns how many devices are currently producing sound.
func (o *Output) Playing() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, d := range o.devices {
		if d.IsPlaying() {
			n++
		}
	}
	return n
}

// Devices returns how many devices were created.
func (o *Output) Devices() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	for _, d := range o.devices {
		d.Stop()
	}
	slog.Debug("simdevice: output closed", "devices", len(o.devices))
	return nil
}

type state int

const (
	stopped state = iota
	playing
	paused
)

// Device is a simulated voice.
type Device struct {
	name  string
	clock audio.Clock

	mu       sync.Mutex
	clip     *audio.Clip
	loop     bool
	priority int
	group    string
	volume   float64
	pitch    float64
	offset   time.Duration
	spatial  audio.Spatial
	position audio.Vec3

	state state
	// head is the content position reached at mark, in clip time.
	head time.Duration
	mark time.Duration
}

func (d *Device) SetClip(c *audio.Clip) { d.mu.Lock(); d.clip = c; d.mu.Unlock() }
func (d *Device) Clip() *audio.Clip     { d.mu.Lock(); defer d.mu.Unlock(); return d.clip }
func (d *Device) SetLoop(l bool)        { d.mu.Lock(); d.loop = l; d.mu.Unlock() }
func (d *Device) SetPriority(p int)     { d.mu.Lock(); d.priority = p; d.mu.Unlock() }
func (d *Device) SetOutput(g string)    { d.mu.Lock(); d.group = g; d.mu.Unlock() }
func (d *Device) SetVolume(v float64)   { d.mu.Lock(); d.volume = v; d.mu.Unlock() }
func (d *Device) Volume() float64       { d.mu.Lock(); defer d.mu.Unlock(); return d.volume }

func (d *Device) SetStartOffset(o time.Duration) { d.mu.Lock(); d.offset = o; d.mu.Unlock() }
func (d *Device) SetSpatial(s audio.Spatial)     { d.mu.Lock(); d.spatial = s; d.mu.Unlock() }
func (d *Device) SetPosition(p audio.Vec3)       { d.mu.Lock(); d.position = p; d.mu.Unlock() }
func (d *Device) Position() audio.Vec3           { d.mu.Lock(); defer d.mu.Unlock(); return d.position }

// SetPitch changes the playback rate. The read head is carried over so the
// remaining content plays at the new rate.
func (d *Device) SetPitch(p float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == playing {
		now := d.clock.Now()
		d.head = d.headAt(now)
		d.mark = now
	}
	d.pitch = p
}

func (d *Device) Pitch() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.pitch }

// Output returns the output group the device routes to.
func (d *Device) Output() string { d.mu.Lock(); defer d.mu.Unlock(); return d.group }

// Name returns the name given at creation.
func (d *Device) Name() string { return d.name }

// Play starts the clip from the start offset.
func (d *Device) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = playing
	d.head = d.offset
	d.mark = d.clock.Now()
}

// Stop halts playback and rewinds.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stopped
	d.head = 0
}

// Pause freezes the read head.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != playing {
		return
	}
	now := d.clock.Now()
	d.head = d.headAt(now)
	d.mark = now
	d.state = paused
}

// Resume continues from the frozen read head.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != paused {
		return
	}
	d.mark = d.clock.Now()
	d.state = playing
}

// IsPlaying implements [audio.Device]. A non-looping device stops playing
// once its read head passes the end of the clip.
func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != playing || d.clip == nil {
		return false
	}
	if d.loop {
		return true
	}
	return d.headAt(d.clock.Now()) < d.clip.Length
}

// Head returns the current content position, wrapped for looping clips.
func (d *Device) Head() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.head
	if d.state == playing {
		h = d.headAt(d.clock.Now())
	}
	if d.clip == nil || d.clip.Length <= 0 {
		return h
	}
	if d.loop {
		return h % d.clip.Length
	}
	return min(h, d.clip.Length)
}

// headAt must be called with d.mu held.
func (d *Device) headAt(now time.Duration) time.Duration {
	elapsed := max(0, now-d.mark)
	return d.head + time.Duration(float64(elapsed)*math.Abs(d.pitch))
}
