package orchestrator

import (
	"math"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/content"
)

const rngSeed uint32 = 2463534242

// rng is a xorshift32 generator. It is deterministic from its seed so tests
// and replays pick the same clips.
type rng struct {
	state uint32
}

func newRNG() rng { return rng{state: rngSeed} }

// Seed resets the clip-selection generator. A zero seed restores the default.
func (o *Orchestrator) Seed(seed uint32) {
	if seed == 0 {
		seed = rngSeed
	}
	o.rng.state = seed
}

// next01 returns a value in [0, 1].
func (r *rng) next01() float64 {
	s := r.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	r.state = s
	return float64(s&0xFFFFFF) / 16777215.0
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// pickClip chooses the clip to play for evt from its loaded content. next is
// the sequence index to store if the play goes ahead.
func (o *Orchestrator) pickClip(evt *catalog.Descriptor, st *eventState) (clip *audio.Clip, next int, ok bool) {
	next = st.sequence
	plain, weighted := o.content.ResolveClips(evt)

	if evt.Selection == audio.SelectWeightedRandom && len(weighted) > 0 {
		if c := o.pickWeighted(weighted); c != nil {
			return c, next, true
		}
	}

	n := len(plain)
	if n == 0 {
		return nil, next, false
	}

	if evt.Selection == audio.SelectSequence {
		index := max(st.sequence, 0)
		for range n {
			c := plain[index%n]
			index = (index + 1) % n
			if c != nil {
				return c, index, true
			}
		}
		return nil, next, false
	}

	i := int(math.Floor(o.rng.next01() * float64(n)))
	i = min(max(i, 0), n-1)
	if plain[i] != nil {
		return plain[i], next, true
	}
	for _, c := range plain {
		if c != nil {
			return c, next, true
		}
	}
	return nil, next, false
}

func (o *Orchestrator) pickWeighted(entries []content.WeightedClip) *audio.Clip {
	var total float64
	for _, e := range entries {
		if e.Clip != nil && e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 {
		return nil
	}
	pick := o.rng.next01() * total
	var cum float64
	var last *audio.Clip
	for _, e := range entries {
		if e.Clip == nil || e.Weight <= 0 {
			continue
		}
		cum += e.Weight
		last = e.Clip
		if pick <= cum {
			return e.Clip
		}
	}
	return last
}

// pickPitch draws a pitch from evt's range.
func (o *Orchestrator) pickPitch(evt *catalog.Descriptor) float64 {
	lo, hi := evt.PitchMin, evt.PitchMax
	if math.Abs(hi-lo) < 1e-6 {
		return lo
	}
	return lerp(lo, hi, o.rng.next01())
}

// pickStartOffset draws a random pre-roll bounded by the clip length.
func (o *Orchestrator) pickStartOffset(evt *catalog.Descriptor, clip *audio.Clip) time.Duration {
	if evt.RandomStartOffsetMax <= 0 || clip == nil {
		return 0
	}
	limit := min(evt.RandomStartOffsetMax, max(0, clip.Length-10*time.Millisecond))
	return time.Duration(float64(limit) * o.rng.next01())
}

// playDuration is how long clip plays from offset at pitch.
func playDuration(clip *audio.Clip, offset time.Duration, pitch float64) time.Duration {
	remaining := max(0, clip.Length-offset)
	return time.Duration(float64(remaining) / max(catalog.MinPitch, math.Abs(pitch)))
}
