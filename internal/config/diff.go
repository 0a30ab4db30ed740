package config

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VolumesChanged is true when any configured default bus volume changed.
	// NewVolumes holds the full new set.
	VolumesChanged bool
	NewVolumes     map[audio.Bus]float64

	EventsChanged bool
	EventChanges  []EventDiff // sorted by ID
}

// EventDiff describes what changed for a single event id. Event changes
// take effect on restart; the running catalog is immutable.
type EventDiff struct {
	ID      string
	Added   bool
	Removed bool
	Changed bool
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VolumesChanged && !d.EventsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !maps.Equal(old.Audio.DefaultVolumes, new.Audio.DefaultVolumes) {
		d.VolumesChanged = true
		d.NewVolumes = maps.Clone(new.Audio.DefaultVolumes)
	}

	oldEvents := eventsByID(old.Events)
	newEvents := eventsByID(new.Events)

	for id, oe := range oldEvents {
		ne, ok := newEvents[id]
		switch {
		case !ok:
			d.EventChanges = append(d.EventChanges, EventDiff{ID: oe.ID, Removed: true})
		case !reflect.DeepEqual(oe, ne):
			d.EventChanges = append(d.EventChanges, EventDiff{ID: ne.ID, Changed: true})
		}
	}
	for id, ne := range newEvents {
		if _, ok := oldEvents[id]; !ok {
			d.EventChanges = append(d.EventChanges, EventDiff{ID: ne.ID, Added: true})
		}
	}
	slices.SortFunc(d.EventChanges, func(a, b EventDiff) int {
		return strings.Compare(strings.ToLower(a.ID), strings.ToLower(b.ID))
	})
	d.EventsChanged = len(d.EventChanges) > 0

	return d
}

// eventsByID indexes events by lower-cased id, keeping the first definition
// like the catalog does.
func eventsByID(events []EventConfig) map[string]EventConfig {
	m := make(map[string]EventConfig, len(events))
	for _, e := range events {
		key := strings.ToLower(e.ID)
		if _, dup := m[key]; !dup {
			m[key] = e
		}
	}
	return m
}
