package audio

import (
	"math"
	"time"
)

// Mixer is the mixing console the engine drives. It never plays audio itself.
type Mixer interface {
	// SetParam sets the exposed parameter name to db decibels. It returns
	// false when the parameter does not exist.
	SetParam(name string, db float64) bool

	// TransitionTo moves the mix towards the named snapshot over d. It
	// returns false when the snapshot does not exist.
	TransitionTo(snapshot string, d time.Duration) bool
}

// silenceThreshold is the linear volume at or below which ToDB returns the
// floor value.
const silenceThreshold = 0.0001

// ToDB converts a linear volume in [0, 1] into decibels clamped to
// [minDB, maxDB].
func ToDB(v, minDB, maxDB float64) float64 {
	if v <= silenceThreshold {
		return minDB
	}
	return min(max(20*math.Log10(v), minDB), maxDB)
}

// FromDB converts decibels into a linear gain factor.
func FromDB(db float64) float64 {
	return math.Pow(10, db/20)
}
