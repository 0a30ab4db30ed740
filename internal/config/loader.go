package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"loader": {"fs"},
	"device": {"sim", "oto"},
	"prefs":  {"memory", "file", "postgres"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Problems the engine tolerates at runtime are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TickRate < 0 || cfg.Server.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("server.tick_rate %d is out of range [0, 1000]", cfg.Server.TickRate))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("loader", cfg.Providers.Loader.Name)
	validateProviderName("device", cfg.Providers.Device.Name)
	validateProviderName("prefs", cfg.Providers.Prefs.Name)
	if cfg.Providers.Device.Name == "" {
		errs = append(errs, errors.New("providers.device.name is required"))
	}

	errs = append(errs, validateAudio(&cfg.Audio)...)
	errs = append(errs, validateMixer(cfg)...)
	errs = append(errs, validateEvents(cfg)...)

	return errors.Join(errs...)
}

func validateAudio(a *AudioConfig) []error {
	var errs []error
	for _, bus := range slices.Sorted(maps.Keys(a.DefaultVolumes)) {
		if v := a.DefaultVolumes[bus]; v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("audio.default_volumes.%s %.2f is out of range [0, 1]", bus, v))
		}
	}
	if a.MinDB > a.MaxDB {
		slog.Warn("audio.min_db is above max_db; the range will be swapped", "min_db", a.MinDB, "max_db", a.MaxDB)
	}
	if a.UnloadDelay < 0 {
		errs = append(errs, fmt.Errorf("audio.unload_delay %v must not be negative", a.UnloadDelay))
	}
	for _, p := range []struct {
		name string
		s    pool.Settings
	}{{"pool_2d", a.Pool2D}, {"pool_3d", a.Pool3D}} {
		if p.s.Max < 1 {
			errs = append(errs, fmt.Errorf("audio.%s.max must be at least 1", p.name))
		}
		if p.s.Initial > p.s.Max {
			slog.Warn("pool initial size exceeds max; it will be capped", "pool", p.name, "initial", p.s.Initial, "max", p.s.Max)
		}
	}
	return errs
}

// validateMixer cross-checks the engine's parameter and snapshot names
// against the console declaration. An empty mixer section skips the checks.
func validateMixer(cfg *Config) []error {
	m := cfg.Mixer
	if len(m.Params) == 0 {
		if len(m.Groups) > 0 || len(m.Snapshots) > 0 {
			return []error{errors.New("mixer.groups and mixer.snapshots require mixer.params")}
		}
		return nil
	}

	var errs []error
	for _, group := range slices.Sorted(maps.Keys(m.Groups)) {
		for _, p := range m.Groups[group] {
			if _, ok := m.Params[p]; !ok {
				errs = append(errs, fmt.Errorf("mixer.groups.%s references unknown param %q", group, p))
			}
		}
	}
	for _, snap := range slices.Sorted(maps.Keys(m.Snapshots)) {
		for _, p := range slices.Sorted(maps.Keys(m.Snapshots[snap])) {
			if _, ok := m.Params[p]; !ok {
				errs = append(errs, fmt.Errorf("mixer.snapshots.%s references unknown param %q", snap, p))
			}
		}
	}
	for _, bus := range slices.Sorted(maps.Keys(cfg.Audio.ExposedParams)) {
		if p := cfg.Audio.ExposedParams[bus]; p != "" {
			if _, ok := m.Params[p]; !ok {
				errs = append(errs, fmt.Errorf("audio.exposed_params.%s references unknown mixer param %q", bus, p))
			}
		}
	}
	for _, snap := range slices.Sorted(maps.Keys(cfg.Audio.Snapshots)) {
		if _, ok := m.Snapshots[snap]; !ok {
			slog.Warn("audio.snapshots names a snapshot the mixer does not define; transitions to it will be ignored", "snapshot", snap)
		}
	}
	for _, bus := range slices.Sorted(maps.Keys(cfg.Audio.OutputGroups)) {
		if g := cfg.Audio.OutputGroups[bus]; g != "" {
			if _, ok := m.Groups[g]; !ok {
				slog.Warn("audio.output_groups routes to a group without mixer params", "bus", bus, "group", g)
			}
		}
	}
	return errs
}

func validateEvents(cfg *Config) []error {
	var errs []error
	seen := make(map[string]int, len(cfg.Events))
	for i, e := range cfg.Events {
		prefix := fmt.Sprintf("events[%d]", i)
		if strings.TrimSpace(e.ID) == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		key := strings.ToLower(e.ID)
		if prev, ok := seen[key]; ok {
			slog.Warn("duplicate event id; the first definition wins", "id", e.ID, "index", i, "first", prev)
		} else {
			seen[key] = i
		}
		if e.Bus == "" {
			errs = append(errs, fmt.Errorf("%s.bus is required", prefix))
			continue
		}
		d, err := e.ToDescriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}

	bankSeen := make(map[string]int, len(cfg.Banks))
	for i, b := range cfg.Banks {
		prefix := fmt.Sprintf("banks[%d]", i)
		if b.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		key := strings.ToLower(b.ID)
		if prev, ok := bankSeen[key]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of banks[%d]", prefix, b.ID, prev))
		}
		bankSeen[key] = i
		for _, id := range b.Events {
			if _, ok := seen[strings.ToLower(id)]; !ok {
				slog.Warn("bank references an unknown event; it will be skipped", "bank", b.ID, "event", id)
			}
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
