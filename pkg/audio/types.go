package audio

import (
	"fmt"
	"math"
	"strings"
)

// Bus is the routing category of a sound. Volume persistence, pause
// behaviour and mixer group selection are keyed by bus.
type Bus int

const (
	BusMaster Bus = iota
	BusMusic
	BusSfx
	BusUI
	BusAmbience
	BusVoice
)

// Buses lists every bus in declaration order.
var Buses = []Bus{BusMaster, BusMusic, BusSfx, BusUI, BusAmbience, BusVoice}

var busNames = [...]string{"master", "music", "sfx", "ui", "ambience", "voice"}

// String returns the lower-case name of the bus.
func (b Bus) String() string {
	if b < 0 || int(b) >= len(busNames) {
		return fmt.Sprintf("bus(%d)", int(b))
	}
	return busNames[b]
}

// ParseBus converts a case-insensitive bus name into a [Bus].
func ParseBus(s string) (Bus, error) {
	for i, n := range busNames {
		if strings.EqualFold(s, n) {
			return Bus(i), nil
		}
	}
	return 0, fmt.Errorf("audio: unknown bus %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (b Bus) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (b *Bus) UnmarshalText(text []byte) error {
	v, err := ParseBus(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// SpatialMode decides whether an event plays on the 2D or 3D pool.
type SpatialMode int

const (
	// SpatialAuto plays in 3D when a position or follow target is supplied.
	SpatialAuto SpatialMode = iota
	Spatial2D
	Spatial3D
)

var spatialNames = [...]string{"auto", "2d", "3d"}

func (m SpatialMode) String() string {
	if m < 0 || int(m) >= len(spatialNames) {
		return fmt.Sprintf("spatial(%d)", int(m))
	}
	return spatialNames[m]
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *SpatialMode) UnmarshalText(text []byte) error {
	for i, n := range spatialNames {
		if strings.EqualFold(string(text), n) {
			*m = SpatialMode(i)
			return nil
		}
	}
	return fmt.Errorf("audio: unknown spatial mode %q", text)
}

// ClipSelection controls how a clip is chosen among an event's clips.
type ClipSelection int

const (
	SelectRandom ClipSelection = iota
	SelectSequence
	SelectWeightedRandom
)

var selectionNames = [...]string{"random", "sequence", "weighted_random"}

func (c ClipSelection) String() string {
	if c < 0 || int(c) >= len(selectionNames) {
		return fmt.Sprintf("selection(%d)", int(c))
	}
	return selectionNames[c]
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *ClipSelection) UnmarshalText(text []byte) error {
	for i, n := range selectionNames {
		if strings.EqualFold(string(text), n) {
			*c = ClipSelection(i)
			return nil
		}
	}
	return fmt.Errorf("audio: unknown clip selection %q", text)
}

// StealPolicy decides which in-use voice a full pool evicts.
type StealPolicy int

const (
	// StealLowestPriority evicts the voice with the numerically highest
	// priority value.
	StealLowestPriority StealPolicy = iota
	// StealOldest evicts the voice that started first.
	StealOldest
	// SkipIfFull never evicts.
	SkipIfFull
)

var stealNames = [...]string{"steal_lowest_priority", "steal_oldest", "skip_if_full"}

func (p StealPolicy) String() string {
	if p < 0 || int(p) >= len(stealNames) {
		return fmt.Sprintf("steal(%d)", int(p))
	}
	return stealNames[p]
}

// ParseStealPolicy converts a case-insensitive policy name into a [StealPolicy].
func ParseStealPolicy(s string) (StealPolicy, error) {
	for i, n := range stealNames {
		if strings.EqualFold(s, n) {
			return StealPolicy(i), nil
		}
	}
	return 0, fmt.Errorf("audio: unknown steal policy %q", s)
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *StealPolicy) UnmarshalText(text []byte) error {
	v, err := ParseStealPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Rolloff is the distance attenuation curve of a 3D voice.
type Rolloff int

const (
	RolloffLogarithmic Rolloff = iota
	RolloffLinear
)

func (r Rolloff) String() string {
	if r == RolloffLinear {
		return "linear"
	}
	return "logarithmic"
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *Rolloff) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "logarithmic", "log":
		*r = RolloffLogarithmic
	case "linear":
		*r = RolloffLinear
	default:
		return fmt.Errorf("audio: unknown rolloff %q", text)
	}
	return nil
}

// Vec3 is a position in world space.
type Vec3 struct {
	X, Y, Z float64
}

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Target is something a 3D voice can follow. Position is sampled on every
// pool tick.
type Target interface {
	Position() Vec3
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
