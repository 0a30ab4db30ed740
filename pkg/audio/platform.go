// Package audio defines the shared vocabulary of the soundcue playback
// engine: routing enums, decoded clips, and the narrow interfaces the engine
// consumes from its collaborators.
//
// The collaborator abstractions are:
//
//   - [Output] and [Device]: a sound-emitting backend and its per-voice
//     playback objects (volume, pitch, loop, 3D parameters, play state).
//   - [Loader] and [LoadOp]: asynchronous asset loading keyed by string.
//   - [Mixer]: exposed dB parameters and named snapshot transitions.
//   - [Store]: persistent float preferences.
//   - [Clock]: a monotonic time source.
//
// Implementations live in sibling packages (audio/otodevice, audio/simdevice,
// audio/fsloader, audio/mixer, prefs). This package lives under pkg/ because
// host applications are expected to provide their own backends.
package audio

import "time"

// Spatial holds the 3D parameters applied to a [Device] before playback.
type Spatial struct {
	// Blend is 0 for fully 2D playback and 1 for fully 3D playback.
	Blend float64

	Rolloff     Rolloff
	MinDistance float64
	MaxDistance float64

	BypassReverbZones bool
	BypassEffects     bool
}

// Device is one controllable sound-emitting object. Devices are owned by the
// engine's tick goroutine; implementations only need to tolerate concurrent
// access from their own audio callback.
type Device interface {
	// SetClip assigns the content to play. A nil clip clears the device.
	SetClip(c *Clip)
	Clip() *Clip

	SetLoop(loop bool)
	SetPriority(priority int)
	SetOutput(group string)

	SetVolume(v float64)
	Volume() float64

	SetPitch(p float64)
	Pitch() float64

	// SetStartOffset positions the read head before Play.
	SetStartOffset(d time.Duration)

	SetSpatial(s Spatial)
	SetPosition(p Vec3)
	Position() Vec3

	Play()
	Stop()
	Pause()
	Resume()

	// IsPlaying reports whether the device is producing sound. A paused or
	// finished device is not playing.
	IsPlaying() bool
}

// Output creates devices and exposes the device clock against which voice
// end times are computed.
type Output interface {
	Clock

	// NewDevice allocates a fresh, stopped device. name is informational.
	NewDevice(name string) Device

	// Close stops every device and releases the backend.
	Close() error
}
