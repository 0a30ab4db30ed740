package orchestrator

import (
	"log/slog"
	"maps"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// PrefKey returns the preference key a bus volume is stored under.
func PrefKey(b audio.Bus) string {
	return "audio." + b.String() + ".01"
}

// SetVolume01 sets the volume of bus to v in [0, 1], converts it to dB for
// the bus's exposed mixer parameter and persists it.
func (o *Orchestrator) SetVolume01(b audio.Bus, v float64) {
	o.setMixerVolume(b, v, true)
}

// SetMasterVolume01 sets and persists the master volume.
func (o *Orchestrator) SetMasterVolume01(v float64) { o.SetVolume01(audio.BusMaster, v) }

// SetMusicVolume01 sets and persists the music volume.
func (o *Orchestrator) SetMusicVolume01(v float64) { o.SetVolume01(audio.BusMusic, v) }

// SetSfxVolume01 sets and persists the effects volume.
func (o *Orchestrator) SetSfxVolume01(v float64) { o.SetVolume01(audio.BusSfx, v) }

// SetUIVolume01 sets and persists the interface volume.
func (o *Orchestrator) SetUIVolume01(v float64) { o.SetVolume01(audio.BusUI, v) }

// Volume01 returns the persisted volume of b, or its configured default.
func (o *Orchestrator) Volume01(b audio.Bus) float64 {
	return o.savedOrDefault(b)
}

func (o *Orchestrator) savedOrDefault(b audio.Bus) float64 {
	if o.store != nil {
		if v, ok := o.store.Float(PrefKey(b)); ok {
			return audio.Clamp01(v)
		}
	}
	return o.cfg.defaultVolume(b)
}

func (o *Orchestrator) setMixerVolume(b audio.Bus, v float64, save bool) {
	v = audio.Clamp01(v)
	param, ok := o.cfg.ExposedParams[b]
	if !ok || param == "" {
		slog.Warn("orchestrator: no exposed mixer parameter for bus", "bus", b)
		return
	}
	if o.mixer == nil {
		slog.Warn("orchestrator: volume ignored, no mixer configured", "bus", b)
		return
	}
	if !o.mixer.SetParam(param, audio.ToDB(v, o.cfg.MinDB, o.cfg.MaxDB)) {
		slog.Warn("orchestrator: mixer rejected parameter", "bus", b, "param", param)
		return
	}
	if !save || o.store == nil {
		return
	}
	o.store.SetFloat(PrefKey(b), v)
	if err := o.store.Save(); err != nil {
		slog.Warn("orchestrator: failed to persist volume", "bus", b, "err", err)
	}
}

// LoadAndApplyVolumes pushes the persisted (or default) volume of every bus
// to the mixer without saving.
func (o *Orchestrator) LoadAndApplyVolumes() {
	for _, b := range audio.Buses {
		if _, ok := o.cfg.ExposedParams[b]; !ok {
			continue
		}
		o.setMixerVolume(b, o.savedOrDefault(b), false)
	}
}

// SetDefaultVolumes replaces the configured default volumes and re-applies
// every bus. Buses with a persisted volume keep it.
func (o *Orchestrator) SetDefaultVolumes(vols map[audio.Bus]float64) {
	o.cfg.DefaultVolumes = maps.Clone(vols)
	o.LoadAndApplyVolumes()
}

// MuteAll silences the master bus, or restores the volume it had before
// muting. Neither direction is persisted.
func (o *Orchestrator) MuteAll(mute bool) {
	if mute {
		o.lastMaster = o.savedOrDefault(audio.BusMaster)
		o.setMixerVolume(audio.BusMaster, 0, false)
		return
	}
	o.setMixerVolume(audio.BusMaster, o.lastMaster, false)
}

type activeSnapshot struct {
	name     string
	priority int
	frame    int64
}

// TransitionToSnapshot moves the mixer to the named snapshot over d. Within
// one frame a request with a lower priority than the snapshot already chosen
// that frame is refused; across frames the latest request wins.
func (o *Orchestrator) TransitionToSnapshot(name string, d time.Duration) bool {
	priority, ok := o.cfg.Snapshots[name]
	if !ok {
		slog.Warn("orchestrator: snapshot not found", "name", name)
		return false
	}
	if o.mixer == nil {
		slog.Warn("orchestrator: snapshot ignored, no mixer configured", "name", name)
		return false
	}
	cur := o.snapshot
	if cur.frame == o.frame && cur.name != "" && priority < cur.priority {
		slog.Debug("orchestrator: snapshot skipped by priority",
			"name", name,
			"priority", priority,
			"active", cur.name,
			"active_priority", cur.priority,
		)
		return false
	}
	if !o.mixer.TransitionTo(name, max(0, d)) {
		slog.Warn("orchestrator: mixer has no such snapshot", "name", name)
		return false
	}
	o.snapshot = activeSnapshot{name: name, priority: priority, frame: o.frame}
	return true
}

// ActiveSnapshot returns the name of the last applied snapshot.
func (o *Orchestrator) ActiveSnapshot() string { return o.snapshot.name }
