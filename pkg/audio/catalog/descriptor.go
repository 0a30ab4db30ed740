// Package catalog holds the immutable sound event descriptors the engine
// plays, the case-insensitive lookup table built from them, named banks of
// events, and a discovery registry for events that appear at runtime.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Descriptor defaults.
const (
	DefaultVolume       = 1.0
	DefaultPitch        = 1.0
	DefaultMinDistance  = 1.0
	DefaultMaxDistance  = 20.0
	DefaultPriority     = 128
	DefaultMaxInstances = 8

	// MinPitch is the lowest pitch a voice may play at.
	MinPitch = 0.01

	// MaxPriority is the upper bound of the priority range.
	MaxPriority = 256
)

// WeightedClip is a clip reference with a selection weight. Entries with a
// weight <= 0 are never selected.
type WeightedClip struct {
	Key    string
	Weight float64
}

// Descriptor is an authored sound event. It is treated as immutable after
// [Descriptor.Normalize]; the engine keys its per-event runtime state by
// descriptor pointer.
type Descriptor struct {
	ID  string
	Bus audio.Bus

	// Clips are plain clip references used by Random and Sequence selection.
	Clips []string
	// Weighted are used by WeightedRandom selection.
	Weighted  []WeightedClip
	Selection audio.ClipSelection

	Volume   float64
	PitchMin float64
	PitchMax float64
	// RandomStartOffsetMax bounds a random pre-roll into the clip.
	RandomStartOffsetMax time.Duration
	Loop                 bool

	Spatial     audio.SpatialMode
	MinDistance float64
	MaxDistance float64
	Rolloff     audio.Rolloff

	// Priority is in [0, 256]. Higher values are evicted first when a pool
	// is full under StealLowestPriority.
	Priority     int
	MaxInstances int
	Cooldown     time.Duration

	DuckSfxOnUI       bool
	BypassReverbZones bool
	BypassEffects     bool
}

// NewDescriptor returns a descriptor with the default playback settings.
func NewDescriptor(id string, bus audio.Bus, clips ...string) *Descriptor {
	return &Descriptor{
		ID:           id,
		Bus:          bus,
		Clips:        clips,
		Volume:       DefaultVolume,
		PitchMin:     DefaultPitch,
		PitchMax:     DefaultPitch,
		MinDistance:  DefaultMinDistance,
		MaxDistance:  DefaultMaxDistance,
		Rolloff:      audio.RolloffLogarithmic,
		Priority:     DefaultPriority,
		MaxInstances: DefaultMaxInstances,
	}
}

// Normalize clamps authored values into their legal ranges: pitches at least
// [MinPitch] with max >= min, max distance >= min distance, at least one
// instance, volume in [0, 1] and priority in [0, 256].
func (d *Descriptor) Normalize() {
	if d.PitchMin <= 0 {
		d.PitchMin = MinPitch
	}
	if d.PitchMax <= 0 {
		d.PitchMax = MinPitch
	}
	if d.PitchMax < d.PitchMin {
		d.PitchMax = d.PitchMin
	}
	if d.MinDistance < 0 {
		d.MinDistance = 0
	}
	if d.MaxDistance < d.MinDistance {
		d.MaxDistance = d.MinDistance
	}
	if d.MaxInstances < 1 {
		d.MaxInstances = 1
	}
	if d.RandomStartOffsetMax < 0 {
		d.RandomStartOffsetMax = 0
	}
	if d.Cooldown < 0 {
		d.Cooldown = 0
	}
	d.Volume = audio.Clamp01(d.Volume)
	d.Priority = min(max(d.Priority, 0), MaxPriority)
}

// Validate reports authoring problems that Normalize would silently repair.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if len(d.Clips) == 0 && len(d.Weighted) == 0 {
		errs = append(errs, fmt.Errorf("event %q has no clips", d.ID))
	}
	if d.Selection == audio.SelectWeightedRandom && len(d.Weighted) == 0 {
		errs = append(errs, fmt.Errorf("event %q uses weighted_random without weighted clips", d.ID))
	}
	if d.PitchMin < MinPitch || d.PitchMax < MinPitch {
		errs = append(errs, fmt.Errorf("event %q pitch range must be >= %.2f", d.ID, MinPitch))
	}
	if d.PitchMax < d.PitchMin {
		errs = append(errs, fmt.Errorf("event %q pitch max %.2f is below min %.2f", d.ID, d.PitchMax, d.PitchMin))
	}
	if d.MaxDistance < d.MinDistance {
		errs = append(errs, fmt.Errorf("event %q max distance %.2f is below min %.2f", d.ID, d.MaxDistance, d.MinDistance))
	}
	if d.MaxInstances < 1 {
		errs = append(errs, fmt.Errorf("event %q max instances must be >= 1", d.ID))
	}
	if d.Priority < 0 || d.Priority > MaxPriority {
		errs = append(errs, fmt.Errorf("event %q priority %d is out of range [0, %d]", d.ID, d.Priority, MaxPriority))
	}
	return errors.Join(errs...)
}

// Keys returns every distinct clip key the descriptor references, plain
// clips first.
func (d *Descriptor) Keys() []string {
	seen := make(map[string]struct{}, len(d.Clips)+len(d.Weighted))
	keys := make([]string, 0, len(d.Clips)+len(d.Weighted))
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, k := range d.Clips {
		add(k)
	}
	for _, w := range d.Weighted {
		add(w.Key)
	}
	return keys
}

// UsesWeighted reports whether clip readiness and selection use the weighted
// set.
func (d *Descriptor) UsesWeighted() bool {
	return d.Selection == audio.SelectWeightedRandom && len(d.Weighted) > 0
}
