// Package pool hands out a bounded, growable set of playback voices with a
// configurable overflow policy. The engine keeps one pool for 2D and one for
// 3D playback.
//
// A VoicePool is owned by the engine tick goroutine and is not safe for
// concurrent use.
package pool

import (
	"container/heap"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
)

// NoHandle marks a voice that is not bound to an engine handle.
const NoHandle int64 = -1

// Forever is the end time of voices that never finish on their own.
const Forever = time.Duration(1<<63 - 1)

// Voice is one playback slot. The engine fills in the routing metadata after
// [VoicePool.TryAcquire]; the pool clears it on release.
type Voice struct {
	Device audio.Device

	// Priority and Start are set by TryAcquire and drive eviction order.
	Priority int
	Start    time.Duration
	// End is the device-clock time at which a non-looping voice is done.
	End     time.Duration
	Looping bool

	Handle int64
	Event  *catalog.Descriptor
	Follow audio.Target
	Bus    audio.Bus

	inUse     bool
	paused    bool
	pausedAt  time.Duration
	slot      int
	heapIndex int
}

// InUse reports whether the voice is currently allocated.
func (v *Voice) InUse() bool { return v != nil && v.inUse }

// Paused reports whether the voice was paused through [VoicePool.Pause].
func (v *Voice) Paused() bool { return v != nil && v.paused }

// Option configures a [VoicePool].
type Option func(*VoicePool)

// WithReleaseCallback registers fn to run whenever a voice is released,
// whether by the caller, by auto-release in Tick or by eviction. The voice's
// Handle, Event and Bus are still set while fn runs.
func WithReleaseCallback(fn func(*Voice)) Option {
	return func(p *VoicePool) { p.onRelease = fn }
}

// WithRecorder reports evictions to rec.
func WithRecorder(rec audio.Recorder) Option {
	return func(p *VoicePool) {
		if rec != nil {
			p.rec = rec
		}
	}
}

// VoicePool is a growable array of voices with eviction.
type VoicePool struct {
	name      string
	out       audio.Output
	settings  Settings
	voices    []*Voice
	victims   victimHeap
	inUse     int
	elapsed   time.Duration
	onRelease func(*Voice)
	rec       audio.Recorder
}

// New creates a pool named name whose voices are devices from out. Settings
// are normalized and Initial voices allocated immediately.
func New(name string, out audio.Output, settings Settings, opts ...Option) *VoicePool {
	settings = settings.Normalize()
	p := &VoicePool{
		name:     name,
		out:      out,
		settings: settings,
		voices:   make([]*Voice, 0, settings.Max),
		victims:  victimHeap{oldest: settings.Policy == audio.StealOldest},
		rec:      audio.NopRecorder{},
	}
	for _, o := range opts {
		o(p)
	}
	p.grow(settings.Initial)
	return p
}

func (p *VoicePool) grow(n int) {
	for range n {
		slot := len(p.voices)
		p.voices = append(p.voices, &Voice{
			Device:    p.out.NewDevice(fmt.Sprintf("%s-%d", p.name, slot)),
			Priority:  catalog.DefaultPriority,
			Handle:    NoHandle,
			Bus:       audio.BusSfx,
			slot:      slot,
			heapIndex: -1,
		})
	}
}

// TryAcquire returns a voice for a playback at priority starting at start:
// a free voice, else a newly grown one while below Max, else a voice evicted
// under the pool's steal policy. It returns nil when the pool is full under
// SkipIfFull.
func (p *VoicePool) TryAcquire(priority int, start time.Duration) *Voice {
	v := p.acquire()
	if v == nil {
		return nil
	}
	v.inUse = true
	v.Priority = min(max(priority, 0), catalog.MaxPriority)
	v.Start = start
	v.End = Forever
	p.inUse++
	heap.Push(&p.victims, v)
	return v
}

func (p *VoicePool) acquire() *Voice {
	for _, v := range p.voices {
		if !v.inUse {
			return v
		}
	}

	if before := len(p.voices); before < p.settings.Max {
		p.grow(min(p.settings.Step, p.settings.Max-before))
		slog.Debug("pool: expanded", "pool", p.name, "from", before, "to", len(p.voices))
		return p.voices[before]
	}

	if p.settings.Policy == audio.SkipIfFull || p.victims.Len() == 0 {
		return nil
	}
	victim := p.victims.voices[0]
	slog.Debug("pool: stealing voice",
		"pool", p.name,
		"handle", victim.Handle,
		"priority", victim.Priority,
		"policy", p.settings.Policy,
	)
	p.Release(victim)
	p.rec.VoiceStolen(p.name)
	return victim
}

// Release returns v to the free set. Releasing a free or nil voice is a
// no-op. The device is stopped and reset, then the release callback runs
// with the voice's Handle, Event and Bus intact, then those are cleared.
func (p *VoicePool) Release(v *Voice) {
	if v == nil || !v.inUse {
		return
	}
	if v.heapIndex >= 0 {
		heap.Remove(&p.victims, v.heapIndex)
	}

	handle, evt, bus := v.Handle, v.Event, v.Bus

	v.Device.Stop()
	v.Device.SetClip(nil)
	v.Device.SetLoop(false)
	v.Device.SetPitch(1)
	v.Device.SetVolume(1)

	v.inUse = false
	v.paused = false
	v.pausedAt = 0
	v.Priority = catalog.DefaultPriority
	v.Follow = nil
	v.Start = 0
	v.End = 0
	v.Looping = false
	p.inUse--

	v.Handle, v.Event, v.Bus = handle, evt, bus
	if p.onRelease != nil {
		p.onRelease(v)
	}
	v.Handle = NoHandle
	v.Event = nil
	v.Bus = audio.BusSfx
}

// Pause pauses v's device and stops auto-release from treating it as
// finished until [VoicePool.Resume].
func (p *VoicePool) Pause(v *Voice, now time.Duration) {
	if !v.InUse() || v.paused {
		return
	}
	v.Device.Pause()
	v.paused = true
	v.pausedAt = now
}

// Resume resumes v and pushes its end time back by the time spent paused.
func (p *VoicePool) Resume(v *Voice, now time.Duration) {
	if !v.InUse() || !v.paused {
		return
	}
	v.Device.Resume()
	if !v.Looping && v.End != Forever {
		if d := now - v.pausedAt; d > 0 {
			v.End += d
		}
	}
	v.paused = false
	v.pausedAt = 0
}

// Tick updates follow-target positions and releases finished voices. It only
// does work once every AutoReleaseInterval of accumulated dt. now is the
// device clock.
func (p *VoicePool) Tick(now, dt time.Duration) {
	p.elapsed += dt
	if p.elapsed < p.settings.AutoReleaseInterval {
		return
	}
	p.elapsed = 0

	for _, v := range p.voices {
		if !v.inUse {
			continue
		}
		if v.Follow != nil {
			v.Device.SetPosition(v.Follow.Position())
		}
		if v.Looping || v.paused {
			continue
		}
		if now >= v.End || !v.Device.IsPlaying() {
			p.Release(v)
		}
	}
}

// ByHandle returns the in-use voice bound to handle.
func (p *VoicePool) ByHandle(handle int64) (*Voice, bool) {
	for _, v := range p.voices {
		if v.inUse && v.Handle == handle {
			return v, true
		}
	}
	return nil, false
}

// Each calls fn for every in-use voice in slot order.
func (p *VoicePool) Each(fn func(*Voice)) {
	for _, v := range p.voices {
		if v.inUse {
			fn(v)
		}
	}
}

// Name returns the pool name.
func (p *VoicePool) Name() string { return p.name }

// InUse returns the number of allocated voices.
func (p *VoicePool) InUse() int { return p.inUse }

// Total returns the number of voices created so far.
func (p *VoicePool) Total() int { return len(p.voices) }

// Settings returns the normalized settings.
func (p *VoicePool) Settings() Settings { return p.settings }
