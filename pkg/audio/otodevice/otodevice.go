// Package otodevice is an [audio.Output] that plays through the system audio
// device with github.com/ebitengine/oto/v3.
//
// All devices are mixed in software into a single interleaved stereo float32
// stream that one oto player pulls from. Each device reads its clip with a
// fractional read head stepped by pitch and the clip/output sample-rate
// ratio, so clips of any rate play without resampling up front. The output
// clock is the number of frames rendered so far.
package otodevice

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Output)(nil)
	_ audio.Device = (*Device)(nil)
)

const (
	// DefaultSampleRate is the output rate when none is configured.
	DefaultSampleRate = 48000

	// DefaultBufferSize is the oto buffer length.
	DefaultBufferSize = 40 * time.Millisecond

	channels = 2
)

// GainFunc returns the linear gain of an output group.
type GainFunc func(group string) float64

// Option configures an [Output].
type Option func(*Output)

// WithSampleRate sets the output sample rate.
func WithSampleRate(rate int) Option {
	return func(o *Output) {
		if rate > 0 {
			o.rate = rate
		}
	}
}

// WithBufferSize sets the oto buffer length.
func WithBufferSize(d time.Duration) Option {
	return func(o *Output) {
		if d > 0 {
			o.bufferSize = d
		}
	}
}

// WithGain routes each device through fn, typically a mixer console's Gain.
func WithGain(fn GainFunc) Option {
	return func(o *Output) {
		if fn != nil {
			o.gain = fn
		}
	}
}

// WithListener sets the listener that 3D devices are attenuated and panned
// against. Defaults to the origin.
func WithListener(t audio.Target) Option {
	return func(o *Output) { o.listener = t }
}

// Output mixes every device into one stereo stream.
type Output struct {
	rate       int
	bufferSize time.Duration
	gain       GainFunc
	listener   audio.Target

	frames atomic.Int64

	mu      sync.Mutex
	devices []*Device
	scratch []float32

	ctx    *oto.Context
	player *oto.Player
	closed bool
}

// New creates an Output that is not connected to any audio hardware. Pull
// samples with [Output.Render] or [Output.Read]; [Open] connects one to oto.
func New(opts ...Option) *Output {
	o := &Output{
		rate:       DefaultSampleRate,
		bufferSize: DefaultBufferSize,
		gain:       func(string) float64 { return 1 },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open creates an Output and starts playing it through the default audio
// device. oto allows a single context per process.
func Open(opts ...Option) (*Output, error) {
	o := New(opts...)
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.rate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("otodevice: create context: %w", err)
	}
	<-ready

	o.ctx = ctx
	o.player = ctx.NewPlayer(o)
	o.player.Play()
	slog.Info("otodevice: output started", "sample_rate", o.rate, "buffer", o.bufferSize)
	return o, nil
}

// SampleRate returns the output sample rate.
func (o *Output) SampleRate() int { return o.rate }

// Now implements [audio.Clock] as the duration of audio rendered so far.
func (o *Output) Now() time.Duration {
	return time.Duration(o.frames.Load()) * time.Second / time.Duration(o.rate)
}

// NewDevice implements [audio.Output].
func (o *Output) NewDevice(name string) audio.Device {
	d := &Device{name: name, volume: 1, pitch: 1}
	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()
	return d
}

// Read implements [io.Reader] for the oto player: little-endian float32
// stereo frames.
func (o *Output) Read(p []byte) (int, error) {
	n := len(p) / 4
	n -= n % channels
	o.mu.Lock()
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	buf := o.scratch[:n]
	o.mu.Unlock()

	o.Render(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}
	return n * 4, nil
}

// Render mixes the next len(dst)/2 frames into dst and advances the clock.
func (o *Output) Render(dst []float32) {
	clear(dst)
	var listener audio.Vec3
	if o.listener != nil {
		listener = o.listener.Position()
	}

	o.mu.Lock()
	for _, d := range o.devices {
		d.mix(dst, o.rate, o.gain, listener)
	}
	o.mu.Unlock()

	for i, s := range dst {
		dst[i] = min(max(s, -1), 1)
	}
	o.frames.Add(int64(len(dst) / channels))
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	devices := o.devices
	o.mu.Unlock()

	for _, d := range devices {
		d.Stop()
	}
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return fmt.Errorf("otodevice: close player: %w", err)
		}
	}
	if o.ctx != nil {
		if err := o.ctx.Suspend(); err != nil {
			return fmt.Errorf("otodevice: suspend context: %w", err)
		}
	}
	return nil
}

type state int

const (
	stopped state = iota
	playing
	paused
	finished
)

// Device is one software voice.
type Device struct {
	name string

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
	state    state
	head     float64 // in source frames
}

func (d *Device) SetClip(c *audio.Clip) { d.mu.Lock(); d.clip = c; d.mu.Unlock() }
func (d *Device) Clip() *audio.Clip     { d.mu.Lock(); defer d.mu.Unlock(); return d.clip }
func (d *Device) SetLoop(l bool)        { d.mu.Lock(); d.loop = l; d.mu.Unlock() }
func (d *Device) SetPriority(p int)     { d.mu.Lock(); d.priority = p; d.mu.Unlock() }
func (d *Device) SetOutput(g string)    { d.mu.Lock(); d.group = g; d.mu.Unlock() }
func (d *Device) SetVolume(v float64)   { d.mu.Lock(); d.volume = v; d.mu.Unlock() }
func (d *Device) Volume() float64       { d.mu.Lock(); defer d.mu.Unlock(); return d.volume }
func (d *Device) SetPitch(p float64)    { d.mu.Lock(); d.pitch = p; d.mu.Unlock() }
func (d *Device) Pitch() float64        { d.mu.Lock(); defer d.mu.Unlock(); return d.pitch }

func (d *Device) SetStartOffset(o time.Duration) { d.mu.Lock(); d.offset = o; d.mu.Unlock() }
func (d *Device) SetSpatial(s audio.Spatial)     { d.mu.Lock(); d.spatial = s; d.mu.Unlock() }
func (d *Device) SetPosition(p audio.Vec3)       { d.mu.Lock(); d.position = p; d.mu.Unlock() }
func (d *Device) Position() audio.Vec3           { d.mu.Lock(); defer d.mu.Unlock(); return d.position }

// Play starts the clip from the start offset.
func (d *Device) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = playing
	d.head = 0
	if d.clip != nil {
		d.head = d.offset.Seconds() * float64(d.clip.SampleRate)
	}
}

func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stopped
	d.head = 0
}

func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == playing {
		d.state = paused
	}
}

func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == paused {
		d.state = playing
	}
}

// IsPlaying implements [audio.Device].
func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == playing && d.clip != nil
}

// mix adds the device's next frames into dst.
func (d *Device) mix(dst []float32, rate int, gain GainFunc, listener audio.Vec3) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.clip
	if d.state != playing || c == nil {
		return
	}
	frames := c.Frames()
	if frames == 0 || c.SampleRate <= 0 {
		d.state = finished
		return
	}

	g := d.volume * gain(d.group) * attenuation(d.spatial, d.position.Distance(listener))
	left, right := panGains(d.spatial.Blend, d.position.X-listener.X, d.spatial.MaxDistance)
	step := float64(c.SampleRate) / float64(rate) * math.Abs(d.pitch)

	for i := 0; i+1 < len(dst); i += channels {
		idx := int(d.head)
		if idx >= frames {
			if !d.loop {
				d.state = finished
				return
			}
			d.head = math.Mod(d.head, float64(frames))
			idx = int(d.head)
		}
		l, r := frameAt(c, idx)
		dst[i] += float32(float64(l) * g * left)
		dst[i+1] += float32(float64(r) * g * right)
		d.head += step
	}
}

// frameAt returns the left and right sample of frame idx. Mono is duplicated;
// channels beyond the second are ignored.
func frameAt(c *audio.Clip, idx int) (float32, float32) {
	base := idx * c.Channels
	if c.Channels == 1 {
		return c.Samples[base], c.Samples[base]
	}
	return c.Samples[base], c.Samples[base+1]
}

// attenuation is the distance gain of a voice, blended between 2D (unity)
// and the rolloff curve.
func attenuation(s audio.Spatial, dist float64) float64 {
	if s.Blend <= 0 {
		return 1
	}
	minD, maxD := max(s.MinDistance, 1e-3), max(s.MaxDistance, s.MinDistance)
	dist = min(max(dist, minD), maxD)
	var att float64
	switch s.Rolloff {
	case audio.RolloffLinear:
		if maxD <= minD {
			att = 1
		} else {
			att = 1 - (dist-minD)/(maxD-minD)
		}
	default:
		att = minD / dist
	}
	return 1 + (att-1)*audio.Clamp01(s.Blend)
}

// panGains is a linear pan law driven by the horizontal offset from the
// listener.
func panGains(blend, dx, maxDistance float64) (float64, float64) {
	if blend <= 0 || maxDistance <= 0 {
		return 1, 1
	}
	pan := min(max(dx/maxDistance, -1), 1) * audio.Clamp01(blend)
	return min(1, 1-pan), min(1, 1+pan)
}
