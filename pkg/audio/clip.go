package audio

import "time"

// Clip is decoded audio content. Samples are interleaved float32 in [-1, 1].
// A Clip is immutable once returned by a [Loader]; identity (pointer
// equality) is used to track which asset a playing voice holds.
type Clip struct {
	// Key is the asset key the clip was loaded from.
	Key string

	SampleRate int
	Channels   int
	Samples    []float32

	// Length is the playback duration at pitch 1. Backends that do not carry
	// samples (headless simulation) only set Length.
	Length time.Duration
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c == nil || c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// NewClip builds a clip from interleaved samples and derives Length.
func NewClip(key string, samples []float32, sampleRate, channels int) *Clip {
	c := &Clip{
		Key:        key,
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    samples,
	}
	if sampleRate > 0 && channels > 0 {
		c.Length = time.Duration(float64(c.Frames()) / float64(sampleRate) * float64(time.Second))
	}
	return c
}
