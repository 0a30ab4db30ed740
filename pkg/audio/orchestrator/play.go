package orchestrator

import (
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

// Play rejection reasons reported to the recorder.
const (
	rejectDisabled     = "disabled"
	rejectMissing      = "missing"
	rejectNotReady     = "not_ready"
	rejectOverlap      = "overlap"
	rejectMaxInstances = "max_instances"
	rejectCooldown     = "cooldown"
	rejectNoClip       = "no_clip"
	rejectPoolFull     = "pool_full"
)

type playParams struct {
	volume       float64
	pitch        float64
	position     *audio.Vec3
	follow       audio.Target
	allowOverlap bool
}

func newPlayParams(opts []PlayOption) playParams {
	p := playParams{volume: 1, pitch: 1, allowOverlap: true}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// PlayOption adjusts a single play request.
type PlayOption func(*playParams)

// WithVolume multiplies the event volume by mul, clamped to [0, 1].
func WithVolume(mul float64) PlayOption {
	return func(p *playParams) { p.volume = mul }
}

// WithPitch multiplies the picked pitch by mul.
func WithPitch(mul float64) PlayOption {
	return func(p *playParams) { p.pitch = mul }
}

// At places the sound at pos.
func At(pos audio.Vec3) PlayOption {
	return func(p *playParams) { p.position = &pos }
}

// Following attaches the sound to t; its position is tracked every pool
// tick.
func Following(t audio.Target) PlayOption {
	return func(p *playParams) { p.follow = t }
}

// AllowOverlap controls whether a new instance may start while another
// instance of the same event is active. Overlap is allowed by default.
func AllowOverlap(allow bool) PlayOption {
	return func(p *playParams) { p.allowOverlap = allow }
}

// Play plays the catalog event id, dispatching on its bus: UI events go
// through [Orchestrator.PlayUI], music events through
// [Orchestrator.PlayMusic] with default fades, everything else through
// [Orchestrator.PlaySFX].
func (o *Orchestrator) Play(id string, opts ...PlayOption) Handle {
	evt, ok := o.Event(id)
	if !ok {
		o.rec.PlayRejected(audio.BusSfx, rejectMissing)
		return InvalidHandle
	}
	switch evt.Bus {
	case audio.BusUI:
		return o.PlayUI(evt, opts...)
	case audio.BusMusic:
		return o.PlayMusic(evt)
	default:
		return o.PlaySFX(evt, opts...)
	}
}

// PlayUI plays evt as a 2D interface sound. UI sounds keep playing while the
// engine is paused.
func (o *Orchestrator) PlayUI(evt *catalog.Descriptor, opts ...PlayOption) Handle {
	return o.playEvent(evt, newPlayParams(opts), true)
}

// PlaySFX plays evt, in 3D when the event asks for it or a position or
// follow target is given.
func (o *Orchestrator) PlaySFX(evt *catalog.Descriptor, opts ...PlayOption) Handle {
	return o.playEvent(evt, newPlayParams(opts), false)
}

// PlayUIClip plays a raw clip on the UI bus.
func (o *Orchestrator) PlayUIClip(clip *audio.Clip, opts ...PlayOption) Handle {
	return o.playClip(clip, audio.BusUI, true, newPlayParams(opts))
}

// PlaySFXClip plays a raw clip on the Sfx bus, in 3D when a position or
// follow target is given.
func (o *Orchestrator) PlaySFXClip(clip *audio.Clip, opts ...PlayOption) Handle {
	return o.playClip(clip, audio.BusSfx, false, newPlayParams(opts))
}

func (o *Orchestrator) reject(bus audio.Bus, reason string) Handle {
	o.rec.PlayRejected(bus, reason)
	return InvalidHandle
}

func (o *Orchestrator) playEvent(evt *catalog.Descriptor, p playParams, force2D bool) Handle {
	if evt == nil {
		return o.reject(audio.BusSfx, rejectMissing)
	}
	if !o.canLoad(evt) {
		return o.reject(evt.Bus, rejectDisabled)
	}
	if !o.ensureReady(evt) {
		return o.reject(evt.Bus, rejectNotReady)
	}

	st := o.state(evt)
	if !p.allowOverlap && st.active > 0 {
		return o.reject(evt.Bus, rejectOverlap)
	}
	if reason := o.ruleViolation(evt, st); reason != "" {
		return o.reject(evt.Bus, reason)
	}

	clip, next, ok := o.pickClip(evt, st)
	if !ok {
		return o.reject(evt.Bus, rejectNoClip)
	}

	is3D := resolve3D(evt.Spatial, p, force2D)
	pl := o.poolFor(is3D)
	now := o.out.Now()
	v := pl.TryAcquire(evt.Priority, now)
	if v == nil {
		return o.reject(evt.Bus, rejectPoolFull)
	}

	dev := v.Device
	dev.SetOutput(o.outputGroup(evt.Bus))
	dev.SetClip(clip)
	dev.SetLoop(evt.Loop)
	dev.SetPriority(v.Priority)
	pitch := max(catalog.MinPitch, o.pickPitch(evt)*max(catalog.MinPitch, p.pitch))
	dev.SetVolume(audio.Clamp01(evt.Volume * audio.Clamp01(p.volume)))
	dev.SetPitch(pitch)
	offset := o.pickStartOffset(evt, clip)
	dev.SetStartOffset(offset)
	dev.SetSpatial(audio.Spatial{
		Blend:             blend(is3D),
		Rolloff:           evt.Rolloff,
		MinDistance:       evt.MinDistance,
		MaxDistance:       evt.MaxDistance,
		BypassReverbZones: evt.BypassReverbZones,
		BypassEffects:     evt.BypassEffects,
	})
	dev.SetPosition(placement(is3D, p))

	handle := o.newHandle()
	v.Handle = handle
	v.Event = evt
	v.Follow = p.follow
	v.Bus = evt.Bus
	v.Looping = evt.Loop
	if evt.Loop {
		v.End = pool.Forever
	} else {
		v.End = now + playDuration(clip, offset, pitch)
	}

	dev.Play()
	if o.paused && evt.Bus != audio.BusUI {
		pl.Pause(v, now)
	}

	o.voices[handle] = &activeVoice{
		device: dev,
		voice:  v,
		pool:   pl,
		event:  evt,
		clip:   clip,
		bus:    evt.Bus,
	}
	o.content.RegisterInUse(clip)

	st.active++
	st.sequence = next
	st.lastPlay = o.cooldownNow(evt)
	st.played = true

	o.rec.PlayStarted(evt.Bus, false)
	return Handle{owner: o, id: handle}
}

func (o *Orchestrator) playClip(clip *audio.Clip, bus audio.Bus, force2D bool, p playParams) Handle {
	if clip == nil {
		return o.reject(bus, rejectMissing)
	}
	if !o.soundOn {
		return o.reject(bus, rejectDisabled)
	}

	is3D := resolve3D(audio.SpatialAuto, p, force2D)
	pl := o.poolFor(is3D)
	now := o.out.Now()
	v := pl.TryAcquire(catalog.DefaultPriority, now)
	if v == nil {
		return o.reject(bus, rejectPoolFull)
	}

	pitch := max(catalog.MinPitch, p.pitch)
	dev := v.Device
	dev.SetOutput(o.outputGroup(bus))
	dev.SetClip(clip)
	dev.SetLoop(false)
	dev.SetPriority(v.Priority)
	dev.SetVolume(audio.Clamp01(p.volume))
	dev.SetPitch(pitch)
	dev.SetStartOffset(0)
	dev.SetSpatial(audio.Spatial{
		Blend:       blend(is3D),
		Rolloff:     audio.RolloffLogarithmic,
		MinDistance: catalog.DefaultMinDistance,
		MaxDistance: catalog.DefaultMaxDistance,
	})
	dev.SetPosition(placement(is3D, p))

	handle := o.newHandle()
	v.Handle = handle
	v.Event = nil
	v.Follow = p.follow
	v.Bus = bus
	v.Looping = false
	v.End = now + playDuration(clip, 0, pitch)

	dev.Play()
	if o.paused && bus != audio.BusUI {
		pl.Pause(v, now)
	}

	o.voices[handle] = &activeVoice{
		device: dev,
		voice:  v,
		pool:   pl,
		clip:   clip,
		bus:    bus,
	}
	o.content.RegisterInUse(clip)

	o.rec.PlayStarted(bus, false)
	return Handle{owner: o, id: handle}
}

// ensureReady reports whether evt's content is loaded, starting a preload
// when it is not.
func (o *Orchestrator) ensureReady(evt *catalog.Descriptor) bool {
	if !o.canLoad(evt) {
		return false
	}
	if o.content.IsEventReady(evt) {
		return true
	}
	o.content.Preload([]*catalog.Descriptor{evt}, false, "")
	return false
}

// ruleViolation checks the instance cap and cooldown of evt.
func (o *Orchestrator) ruleViolation(evt *catalog.Descriptor, st *eventState) string {
	if st.active >= evt.MaxInstances {
		return rejectMaxInstances
	}
	if evt.Cooldown > 0 && st.played && o.cooldownNow(evt)-st.lastPlay < evt.Cooldown {
		return rejectCooldown
	}
	return ""
}

// cooldownNow is the timeline evt's cooldown is measured on.
func (o *Orchestrator) cooldownNow(evt *catalog.Descriptor) time.Duration {
	if o.cfg.UIAlwaysUnscaled && evt.Bus == audio.BusUI {
		return o.unscaled
	}
	return o.clock.Now()
}

func (o *Orchestrator) poolFor(is3D bool) *pool.VoicePool {
	if is3D {
		return o.pool3D
	}
	return o.pool2D
}

func resolve3D(mode audio.SpatialMode, p playParams, force2D bool) bool {
	if force2D {
		return false
	}
	switch mode {
	case audio.Spatial2D:
		return false
	case audio.Spatial3D:
		return true
	}
	return p.position != nil || p.follow != nil
}

func blend(is3D bool) float64 {
	if is3D {
		return 1
	}
	return 0
}

func placement(is3D bool, p playParams) audio.Vec3 {
	if !is3D {
		return audio.Vec3{}
	}
	if p.follow != nil {
		return p.follow.Position()
	}
	if p.position != nil {
		return *p.position
	}
	return audio.Vec3{}
}

// Stop stops h, fading out over fadeOut when positive. Stale handles and
// handles from another orchestrator are ignored.
func (o *Orchestrator) Stop(h Handle, fadeOut time.Duration) {
	if h.owner != o {
		return
	}
	o.stopHandle(h.id, fadeOut)
}

func (o *Orchestrator) stopHandle(id int64, fadeOut time.Duration) {
	av, ok := o.voices[id]
	if !ok {
		return
	}
	if fadeOut <= 0 {
		o.completeStop(id)
		return
	}
	o.enqueueFade(id, av.device, av.device.Volume(), 0, fadeOut, true)
}

// StopAllSFX stops everything on the Sfx, Ambience and Voice buses.
func (o *Orchestrator) StopAllSFX(fadeOut time.Duration) {
	for _, id := range o.handles() {
		av := o.voices[id]
		if av == nil || av.music {
			continue
		}
		switch av.bus {
		case audio.BusSfx, audio.BusAmbience, audio.BusVoice:
			o.stopHandle(id, fadeOut)
		}
	}
}

// StopByEvent stops every instance of evt and returns how many were
// stopped.
func (o *Orchestrator) StopByEvent(evt *catalog.Descriptor, fadeOut time.Duration) int {
	if evt == nil {
		return 0
	}
	n := 0
	for _, id := range o.handles() {
		av := o.voices[id]
		if av == nil || av.event != evt {
			continue
		}
		o.stopHandle(id, fadeOut)
		n++
	}
	return n
}

// StopByEventID is [Orchestrator.StopByEvent] for a catalog id.
func (o *Orchestrator) StopByEventID(id string, fadeOut time.Duration) int {
	evt, ok := o.Event(id)
	if !ok {
		return 0
	}
	return o.StopByEvent(evt, fadeOut)
}

// StopAll stops every voice, including UI and music.
func (o *Orchestrator) StopAll(fadeOut time.Duration) {
	for _, id := range o.handles() {
		o.stopHandle(id, fadeOut)
	}
}
