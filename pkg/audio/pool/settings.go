package pool

import (
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Settings sizes a [VoicePool].
type Settings struct {
	// Initial is the number of voices allocated up front.
	Initial int `yaml:"initial"`
	// Max is the hard cap on allocated voices.
	Max int `yaml:"max"`
	// Step is how many voices are added when the pool runs dry below Max.
	Step int `yaml:"step"`
	// Policy decides what happens when the pool is at Max and full.
	Policy audio.StealPolicy `yaml:"steal_policy"`
	// AutoReleaseInterval rate-limits the finished-voice scan in Tick.
	AutoReleaseInterval time.Duration `yaml:"auto_release_interval"`
}

// DefaultAutoReleaseInterval is used when AutoReleaseInterval is not positive.
const DefaultAutoReleaseInterval = 100 * time.Millisecond

// DefaultSettings returns 16 initial voices growing by 4 up to 64, stealing
// the least important voice when full.
func DefaultSettings() Settings {
	return Settings{
		Initial:             16,
		Max:                 64,
		Step:                4,
		Policy:              audio.StealLowestPriority,
		AutoReleaseInterval: DefaultAutoReleaseInterval,
	}
}

// Normalize repairs out-of-range values: 0 <= Initial <= Max, Max >= 1,
// Step >= 1 and a positive interval.
func (s Settings) Normalize() Settings {
	if s.Initial < 0 {
		s.Initial = 0
	}
	if s.Max < 1 {
		s.Max = 1
	}
	if s.Initial > s.Max {
		s.Initial = s.Max
	}
	if s.Step < 1 {
		s.Step = 1
	}
	if s.AutoReleaseInterval <= 0 {
		s.AutoReleaseInterval = DefaultAutoReleaseInterval
	}
	return s
}
