package orchestrator

import (
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
)

const noHandle int64 = -1

// Handle refers to one playback started by an [Orchestrator]. Ids increase
// strictly and are never reused, so a handle whose playback has ended stays
// invalid forever. Every method on an invalid handle is a no-op.
//
// The zero Handle is invalid.
type Handle struct {
	owner *Orchestrator
	id    int64
}

// InvalidHandle is returned by play calls that did not start anything.
var InvalidHandle = Handle{}

// ID returns the numeric handle id, 0 for the zero Handle.
func (h Handle) ID() int64 { return h.id }

// IsValid reports whether the playback is still registered.
func (h Handle) IsValid() bool {
	if h.owner == nil {
		return false
	}
	_, ok := h.owner.voices[h.id]
	return ok
}

// IsPlaying reports whether the playback is valid and its device is
// producing sound.
func (h Handle) IsPlaying() bool {
	av := h.voice()
	return av != nil && av.device.IsPlaying()
}

// Stop stops the playback, fading out over fadeOut when positive.
func (h Handle) Stop(fadeOut time.Duration) {
	if h.owner != nil {
		h.owner.Stop(h, fadeOut)
	}
}

// SetVolume sets the device volume, clamped to [0, 1].
func (h Handle) SetVolume(v float64) {
	if av := h.voice(); av != nil {
		av.device.SetVolume(audio.Clamp01(v))
	}
}

// SetPitch sets the device pitch, at least [catalog.MinPitch].
func (h Handle) SetPitch(p float64) {
	if av := h.voice(); av != nil {
		av.device.SetPitch(max(catalog.MinPitch, p))
	}
}

// SetFollowTarget makes a pooled voice track t. Music ignores it.
func (h Handle) SetFollowTarget(t audio.Target) {
	if av := h.voice(); av != nil && av.voice != nil {
		av.voice.Follow = t
	}
}

func (h Handle) voice() *activeVoice {
	if h.owner == nil {
		return nil
	}
	return h.owner.voices[h.id]
}

// Handle rebuilds a handle from a numeric id, for hosts that pass ids across
// an API boundary. The result is invalid unless id is still registered.
func (o *Orchestrator) Handle(id int64) Handle {
	return Handle{owner: o, id: id}
}

// IsHandleValid reports whether id is registered.
func (o *Orchestrator) IsHandleValid(id int64) bool {
	_, ok := o.voices[id]
	return ok
}
