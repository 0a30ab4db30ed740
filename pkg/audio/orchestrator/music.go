package orchestrator

import (
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
)

// Default music transition durations.
const (
	DefaultMusicFadeIn    = 500 * time.Millisecond
	DefaultMusicCrossfade = 500 * time.Millisecond

	restoreFadeIn    = 350 * time.Millisecond
	restoreCrossfade = 200 * time.Millisecond

	musicClipPriority = 64
)

var musicChannelNames = [2]string{"music-a", "music-b"}

// musicChannel is one of the two alternating music players.
type musicChannel struct {
	device audio.Device
	handle int64
	event  *catalog.Descriptor
}

func (c *musicChannel) playing() bool { return c.device.IsPlaying() }

type musicParams struct {
	fadeIn        time.Duration
	crossfade     time.Duration
	restartIfSame bool
}

// MusicOption adjusts a music request.
type MusicOption func(*musicParams)

// FadeIn sets how long the incoming track takes to reach its volume.
func FadeIn(d time.Duration) MusicOption {
	return func(p *musicParams) { p.fadeIn = d }
}

// Crossfade sets how long the outgoing track takes to fade out.
func Crossfade(d time.Duration) MusicOption {
	return func(p *musicParams) { p.crossfade = d }
}

// RestartIfSame restarts the event even if it is already the active track.
func RestartIfSame() MusicOption {
	return func(p *musicParams) { p.restartIfSame = true }
}

func newMusicParams(opts []MusicOption) musicParams {
	p := musicParams{fadeIn: DefaultMusicFadeIn, crossfade: DefaultMusicCrossfade}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// activeMusic returns the index of the more audible playing channel, or -1.
// When both play, A wins ties on volume.
func (o *Orchestrator) activeMusic() int {
	a, b := &o.music[0], &o.music[1]
	switch aOn, bOn := a.playing(), b.playing(); {
	case aOn && bOn:
		if a.device.Volume() >= b.device.Volume() {
			return 0
		}
		return 1
	case aOn:
		return 0
	case bOn:
		return 1
	}
	return -1
}

// PlayMusic crossfades to evt on the idle music channel. If evt is already
// the active track it keeps playing and its handle is returned, unless
// RestartIfSame is given.
func (o *Orchestrator) PlayMusic(evt *catalog.Descriptor, opts ...MusicOption) Handle {
	p := newMusicParams(opts)
	if !o.musicOn {
		return o.reject(audio.BusMusic, rejectDisabled)
	}
	if evt == nil {
		return o.reject(audio.BusMusic, rejectMissing)
	}
	if !o.ensureReady(evt) {
		return o.reject(audio.BusMusic, rejectNotReady)
	}
	st := o.state(evt)
	if reason := o.ruleViolation(evt, st); reason != "" {
		return o.reject(audio.BusMusic, reason)
	}
	clip, _, ok := o.pickClip(evt, st)
	if !ok {
		return o.reject(audio.BusMusic, rejectNoClip)
	}

	active := o.activeMusic()
	if !p.restartIfSame && active >= 0 && o.music[active].event == evt && o.music[active].handle != noHandle {
		return Handle{owner: o, id: o.music[active].handle}
	}

	ch := o.startMusic(active, clip, evt.Loop, evt.Priority, o.pickPitch(evt), o.pickStartOffset(evt, clip))
	ch.event = evt
	o.voices[ch.handle] = &activeVoice{
		device: ch.device,
		event:  evt,
		clip:   clip,
		bus:    audio.BusMusic,
		music:  true,
	}
	o.content.RegisterInUse(clip)
	o.crossfade(active, ch, audio.Clamp01(evt.Volume), p)

	st.active++
	st.lastPlay = o.cooldownNow(evt)
	st.played = true

	o.rec.PlayStarted(audio.BusMusic, true)
	return Handle{owner: o, id: ch.handle}
}

// PlayMusicByID is [Orchestrator.PlayMusic] for a catalog id.
func (o *Orchestrator) PlayMusicByID(id string, opts ...MusicOption) Handle {
	evt, ok := o.Event(id)
	if !ok {
		return o.reject(audio.BusMusic, rejectMissing)
	}
	return o.PlayMusic(evt, opts...)
}

// PlayMusicClip crossfades to a raw looping clip at full volume.
func (o *Orchestrator) PlayMusicClip(clip *audio.Clip, opts ...MusicOption) Handle {
	p := newMusicParams(opts)
	if !o.musicOn {
		return o.reject(audio.BusMusic, rejectDisabled)
	}
	if clip == nil {
		return o.reject(audio.BusMusic, rejectMissing)
	}
	active := o.activeMusic()
	ch := o.startMusic(active, clip, true, musicClipPriority, 1, 0)
	ch.event = nil
	o.voices[ch.handle] = &activeVoice{
		device: ch.device,
		clip:   clip,
		bus:    audio.BusMusic,
		music:  true,
	}
	o.content.RegisterInUse(clip)
	o.crossfade(active, ch, 1, p)

	o.rec.PlayStarted(audio.BusMusic, true)
	return Handle{owner: o, id: ch.handle}
}

// startMusic prepares and starts the channel opposite to active at volume
// zero, offset into clip, and assigns it a fresh handle.
func (o *Orchestrator) startMusic(active int, clip *audio.Clip, loop bool, priority int, pitch float64, offset time.Duration) *musicChannel {
	incoming := 0
	if active == 0 {
		incoming = 1
	}
	ch := &o.music[incoming]
	if ch.handle != noHandle {
		o.unregister(ch.handle, true)
	}
	ch.device.Stop()

	ch.device.SetOutput(o.outputGroup(audio.BusMusic))
	ch.device.SetClip(clip)
	ch.device.SetLoop(loop)
	ch.device.SetPriority(min(max(priority, 0), catalog.MaxPriority))
	ch.device.SetPitch(pitch)
	ch.device.SetVolume(0)
	ch.device.SetSpatial(audio.Spatial{})
	ch.device.SetStartOffset(offset)
	ch.device.Play()
	if o.paused {
		ch.device.Pause()
	}
	ch.handle = o.newHandle()
	return ch
}

func (o *Orchestrator) crossfade(active int, incoming *musicChannel, target float64, p musicParams) {
	o.enqueueFade(incoming.handle, incoming.device, 0, target, max(0, p.fadeIn), false)
	if active < 0 {
		return
	}
	out := &o.music[active]
	if out == incoming || out.handle == noHandle || !out.playing() {
		return
	}
	o.enqueueFade(out.handle, out.device, out.device.Volume(), 0, max(0, p.crossfade), true)
}

// StopMusic stops everything on the Music bus.
func (o *Orchestrator) StopMusic(fadeOut time.Duration) {
	for _, id := range o.handles() {
		if av := o.voices[id]; av != nil && av.bus == audio.BusMusic {
			o.stopHandle(id, fadeOut)
		}
	}
}

// cleanupFinishedMusic unregisters channels whose track ended on its own.
// Skipped while paused, since a paused channel does not report playing.
func (o *Orchestrator) cleanupFinishedMusic() {
	if o.paused {
		return
	}
	for i := range o.music {
		ch := &o.music[i]
		if ch.handle == noHandle || ch.playing() {
			continue
		}
		o.unregister(ch.handle, false)
	}
}

// musicRestore remembers the track to resume when sound is re-enabled.
type musicRestore struct {
	pending bool
	event   *catalog.Descriptor
	clip    *audio.Clip
}

func (o *Orchestrator) captureMusicForRestore() {
	o.restore = musicRestore{}
	var ch *musicChannel
	if i := o.activeMusic(); i >= 0 && o.music[i].device.Clip() != nil {
		ch = &o.music[i]
	} else {
		for i := range o.music {
			if o.music[i].handle != noHandle && o.music[i].device.Clip() != nil {
				ch = &o.music[i]
				break
			}
		}
	}
	if ch == nil {
		return
	}
	o.restore = musicRestore{pending: true, event: ch.event, clip: ch.device.Clip()}
}

func (o *Orchestrator) tryRestoreMusic() {
	if !o.restore.pending || !o.musicOn {
		return
	}
	var h Handle
	switch {
	case o.restore.event != nil:
		h = o.PlayMusic(o.restore.event, FadeIn(restoreFadeIn), Crossfade(restoreCrossfade), RestartIfSame())
	case o.restore.clip != nil:
		h = o.PlayMusicClip(o.restore.clip, FadeIn(restoreFadeIn), Crossfade(restoreCrossfade))
	default:
		o.restore = musicRestore{}
		return
	}
	if h.IsValid() {
		o.restore = musicRestore{}
	}
}
