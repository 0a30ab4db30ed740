// Package config provides the configuration schema, loader, and provider registry
// for the soundcue audio engine.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/mixer"
	"github.com/MrWong99/soundcue/pkg/audio/orchestrator"
	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

// LogLevel controls log verbosity for the soundcue server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DefaultTickRate is the number of engine frames per second when
// server.tick_rate is unset.
const DefaultTickRate = 60

// Config is the root configuration structure for soundcue.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Mixer     MixerConfig     `yaml:"mixer"`
	Events    []EventConfig   `yaml:"events"`
	Banks     []BankConfig    `yaml:"banks"`
}

// ServerConfig holds network, logging and frame-rate settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the control API (e.g., ":8080").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TickRate is the number of engine frames per second.
	TickRate int `yaml:"tick_rate"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// TickInterval is the frame duration derived from TickRate.
func (s ServerConfig) TickInterval() time.Duration {
	rate := s.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// ProvidersConfig declares which implementation backs each engine
// collaborator. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Loader ProviderEntry `yaml:"loader"`
	Device ProviderEntry `yaml:"device"`
	Prefs  ProviderEntry `yaml:"prefs"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "fs", "oto").
	Name string `yaml:"name"`

	// Options holds provider-specific configuration values. Values may be
	// strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// AudioConfig is the static engine configuration.
type AudioConfig struct {
	// OutputGroups routes each bus to a mixer group.
	OutputGroups map[audio.Bus]string `yaml:"output_groups"`

	// Snapshots maps mixer snapshot names to their transition priority.
	Snapshots map[string]int `yaml:"snapshots"`

	// ExposedParams maps each bus to the mixer parameter holding its volume.
	ExposedParams map[audio.Bus]string `yaml:"exposed_params"`

	// DefaultVolumes applies to buses without a persisted volume, in [0, 1].
	DefaultVolumes map[audio.Bus]float64 `yaml:"default_volumes"`

	// MinDB and MaxDB bound the decibel range bus volumes map onto. An
	// inverted range is swapped.
	MinDB float64 `yaml:"min_db"`
	MaxDB float64 `yaml:"max_db"`

	// UnloadDelay is the grace period before unreferenced content is
	// unloaded.
	UnloadDelay time.Duration `yaml:"unload_delay"`

	PauseOnFocusLost bool `yaml:"pause_on_focus_lost"`
	PauseOnAppPause  bool `yaml:"pause_on_app_pause"`
	UIAlwaysUnscaled bool `yaml:"ui_always_unscaled"`

	Pool2D pool.Settings `yaml:"pool_2d"`
	Pool3D pool.Settings `yaml:"pool_3d"`
}

// MixerConfig describes the software mixing console.
type MixerConfig struct {
	// FloorDB is the level at or below which a group is silent. Defaults
	// to -80.
	FloorDB float64 `yaml:"floor_db"`

	// Params declares the exposed parameters and their initial level in dB.
	Params map[string]float64 `yaml:"params"`

	// Groups binds each output group to the parameters scaling it.
	Groups map[string][]string `yaml:"groups"`

	// Snapshots holds the parameter levels of each named mix state.
	Snapshots map[string]map[string]float64 `yaml:"snapshots"`
}

// WeightedClipConfig is a clip reference with a selection weight.
type WeightedClipConfig struct {
	Key    string  `yaml:"key"`
	Weight float64 `yaml:"weight"`
}

// EventConfig is the authored form of a sound event. Unset numeric fields
// take the catalog defaults.
type EventConfig struct {
	ID        string               `yaml:"id"`
	Bus       string               `yaml:"bus"`
	Clips     []string             `yaml:"clips"`
	Weighted  []WeightedClipConfig `yaml:"weighted"`
	Selection audio.ClipSelection  `yaml:"selection"`

	Volume   *float64 `yaml:"volume"`
	PitchMin float64  `yaml:"pitch_min"`
	PitchMax float64  `yaml:"pitch_max"`

	RandomStartOffsetMax time.Duration `yaml:"random_start_offset_max"`
	Loop                 bool          `yaml:"loop"`

	Spatial     audio.SpatialMode `yaml:"spatial"`
	MinDistance float64           `yaml:"min_distance"`
	MaxDistance float64           `yaml:"max_distance"`
	Rolloff     audio.Rolloff     `yaml:"rolloff"`

	Priority     *int          `yaml:"priority"`
	MaxInstances int           `yaml:"max_instances"`
	Cooldown     time.Duration `yaml:"cooldown"`

	DuckSfxOnUI       bool `yaml:"duck_sfx_on_ui"`
	BypassReverbZones bool `yaml:"bypass_reverb_zones"`
	BypassEffects     bool `yaml:"bypass_effects"`
}

// ToDescriptor builds the catalog descriptor for e without normalising it.
func (e EventConfig) ToDescriptor() (*catalog.Descriptor, error) {
	bus, err := audio.ParseBus(e.Bus)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", e.ID, err)
	}
	d := catalog.NewDescriptor(e.ID, bus, e.Clips...)
	for _, w := range e.Weighted {
		d.Weighted = append(d.Weighted, catalog.WeightedClip{Key: w.Key, Weight: w.Weight})
	}
	d.Selection = e.Selection
	if e.Volume != nil {
		d.Volume = *e.Volume
	}
	if e.PitchMin != 0 {
		d.PitchMin = e.PitchMin
	}
	if e.PitchMax != 0 {
		d.PitchMax = e.PitchMax
	}
	d.RandomStartOffsetMax = e.RandomStartOffsetMax
	d.Loop = e.Loop
	d.Spatial = e.Spatial
	if e.MinDistance != 0 {
		d.MinDistance = e.MinDistance
	}
	if e.MaxDistance != 0 {
		d.MaxDistance = e.MaxDistance
	}
	d.Rolloff = e.Rolloff
	if e.Priority != nil {
		d.Priority = *e.Priority
	}
	if e.MaxInstances != 0 {
		d.MaxInstances = e.MaxInstances
	}
	d.Cooldown = e.Cooldown
	d.DuckSfxOnUI = e.DuckSfxOnUI
	d.BypassReverbZones = e.BypassReverbZones
	d.BypassEffects = e.BypassEffects
	return d, nil
}

// BankConfig is a named group of events.
type BankConfig struct {
	ID                   string   `yaml:"id"`
	Events               []string `yaml:"events"`
	LoadWhenSoundEnabled bool     `yaml:"load_when_sound_enabled"`
	LoadWhenMusicEnabled bool     `yaml:"load_when_music_enabled"`
}

// Catalog builds the event catalog. Events that fail to convert are skipped
// and logged by [Validate] beforehand; descriptors are normalised.
func (c *Config) Catalog() *catalog.Catalog {
	events := make([]*catalog.Descriptor, 0, len(c.Events))
	for _, e := range c.Events {
		d, err := e.ToDescriptor()
		if err != nil {
			continue
		}
		d.Normalize()
		events = append(events, d)
	}
	banks := make([]catalog.Bank, 0, len(c.Banks))
	for _, b := range c.Banks {
		banks = append(banks, catalog.Bank{
			ID:                   b.ID,
			EventIDs:             b.Events,
			LoadWhenSoundEnabled: b.LoadWhenSoundEnabled,
			LoadWhenMusicEnabled: b.LoadWhenMusicEnabled,
		})
	}
	return catalog.New(events, banks...)
}

// Orchestrator returns the engine configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	a := c.Audio
	oc := orchestrator.DefaultConfig()
	oc.OutputGroups = a.OutputGroups
	oc.Snapshots = a.Snapshots
	oc.ExposedParams = a.ExposedParams
	for bus, v := range a.DefaultVolumes {
		oc.DefaultVolumes[bus] = v
	}
	oc.MinDB, oc.MaxDB = a.MinDB, a.MaxDB
	oc.UnloadDelay = a.UnloadDelay
	oc.PauseOnFocusLost = a.PauseOnFocusLost
	oc.PauseOnAppPause = a.PauseOnAppPause
	oc.UIAlwaysUnscaled = a.UIAlwaysUnscaled
	oc.Pool2D = a.Pool2D.Normalize()
	oc.Pool3D = a.Pool3D.Normalize()
	return oc
}

// Console builds the mixing console declared in the mixer section.
func (c *Config) Console() *mixer.Console {
	m := c.Mixer
	opts := []mixer.Option{mixer.WithFloor(m.FloorDB)}
	for name, db := range m.Params {
		opts = append(opts, mixer.WithParam(name, db))
	}
	for group, params := range m.Groups {
		opts = append(opts, mixer.WithGroup(group, params...))
	}
	for name, values := range m.Snapshots {
		opts = append(opts, mixer.WithSnapshot(name, values))
	}
	return mixer.New(opts...)
}

// Default returns the configuration every loaded file is decoded on top of.
// Keys absent from the file keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			TickRate:   DefaultTickRate,
		},
		Providers: ProvidersConfig{
			Loader: ProviderEntry{Name: "fs"},
			Device: ProviderEntry{Name: "sim"},
			Prefs:  ProviderEntry{Name: "memory"},
		},
		Audio: AudioConfig{
			MinDB:            orchestrator.DefaultMinDB,
			MaxDB:            orchestrator.DefaultMaxDB,
			UnloadDelay:      orchestrator.DefaultUnloadDelay,
			PauseOnFocusLost: true,
			PauseOnAppPause:  true,
			UIAlwaysUnscaled: true,
			Pool2D:           pool.DefaultSettings(),
			Pool3D:           pool.DefaultSettings(),
		},
		Mixer: MixerConfig{FloorDB: orchestrator.DefaultMinDB},
	}
}
