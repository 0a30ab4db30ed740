package orchestrator

import (
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/content"
)

// Fades used when sound is switched off.
const (
	disableSfxFade   = 50 * time.Millisecond
	disableMusicFade = 200 * time.Millisecond
)

// canLoad reports whether evt's category is currently enabled.
func (o *Orchestrator) canLoad(evt *catalog.Descriptor) bool {
	if evt.Bus == audio.BusMusic {
		return o.musicOn
	}
	return o.soundOn
}

// filterLoadable drops nil, duplicate and disabled-category events.
func (o *Orchestrator) filterLoadable(events []*catalog.Descriptor) []*catalog.Descriptor {
	out := make([]*catalog.Descriptor, 0, len(events))
	seen := make(map[*catalog.Descriptor]struct{}, len(events))
	for _, evt := range events {
		if evt == nil || !o.canLoad(evt) {
			continue
		}
		if _, dup := seen[evt]; dup {
			continue
		}
		seen[evt] = struct{}{}
		out = append(out, evt)
	}
	return out
}

// lookupAll resolves ids, skipping blanks, repeats and unknown ids.
func (o *Orchestrator) lookupAll(ids []string) []*catalog.Descriptor {
	out := make([]*catalog.Descriptor, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if evt, ok := o.Event(id); ok {
			out = append(out, evt)
		}
	}
	return out
}

// PreloadByEvents starts loading the content of events without taking
// references.
func (o *Orchestrator) PreloadByEvents(events []*catalog.Descriptor) *content.LoadHandle {
	loadable := o.filterLoadable(events)
	if len(loadable) == 0 {
		return content.Completed()
	}
	return o.content.Preload(loadable, false, "")
}

// PreloadByIDs is [Orchestrator.PreloadByEvents] for catalog ids.
func (o *Orchestrator) PreloadByIDs(ids []string) *content.LoadHandle {
	return o.PreloadByEvents(o.lookupAll(ids))
}

// PreloadBank preloads the events of the named bank.
func (o *Orchestrator) PreloadBank(id string) *content.LoadHandle {
	bank, ok := o.catalog.Bank(id)
	if !ok {
		slog.Warn("orchestrator: bank not found", "id", id)
		return content.Completed()
	}
	if !o.soundOn && !o.musicOn {
		return content.Completed()
	}
	return o.PreloadByEvents(o.catalog.Resolve(bank.EventIDs))
}

// UnloadBank asks for the named bank's unused content to be unloaded after
// the grace period.
func (o *Orchestrator) UnloadBank(id string) {
	bank, ok := o.catalog.Bank(id)
	if !ok {
		slog.Warn("orchestrator: bank not found", "id", id)
		return
	}
	o.content.RequestUnload(o.catalog.Resolve(bank.EventIDs), false)
}

// AcquireScope loads the events ids under scopeID, replacing any previous
// scope of that name, and keeps them loaded until [Orchestrator.ReleaseScope].
func (o *Orchestrator) AcquireScope(scopeID string, ids []string) *content.LoadHandle {
	if strings.TrimSpace(scopeID) == "" || len(ids) == 0 {
		return content.Completed()
	}
	events := o.filterLoadable(o.lookupAll(ids))
	if len(events) == 0 {
		return content.Completed()
	}
	return o.content.AcquireScope(scopeID, events)
}

// ReleaseScope drops the references held by scopeID.
func (o *Orchestrator) ReleaseScope(scopeID string) {
	o.content.ReleaseScope(scopeID)
}

// UnloadUnused releases every scope and unloads all content that is not
// playing, ignoring the grace period.
func (o *Orchestrator) UnloadUnused() {
	o.content.ReleaseAllScopes()
	o.content.UnloadUnusedNow()
}

// ReloadAsset discards the decoded content of key so the next use decodes
// it again. Playing content is left alone.
func (o *Orchestrator) ReloadAsset(key string) bool {
	return o.content.Reload(key)
}

// DiscoveryMarker returns the discovery registry's current revision, or 0
// without a registry.
func (o *Orchestrator) DiscoveryMarker() int {
	if o.discovery == nil {
		return 0
	}
	return o.discovery.Marker()
}

// PreloadDiscovered preloads every event in the discovery registry. With
// acquireScope the events are held under scopeID, which is then required.
func (o *Orchestrator) PreloadDiscovered(acquireScope bool, scopeID string) *content.LoadHandle {
	return o.PreloadDiscoveredSince(-1, acquireScope, scopeID)
}

// PreloadDiscoveredSince is [Orchestrator.PreloadDiscovered] limited to
// events registered after marker.
func (o *Orchestrator) PreloadDiscoveredSince(marker int, acquireScope bool, scopeID string) *content.LoadHandle {
	if o.discovery == nil {
		o.lastDiscPre = 0
		return content.Completed()
	}
	found := o.discovery.Since(marker)
	o.lastDiscPre = len(found)
	if !o.soundOn && !o.musicOn {
		return content.Completed()
	}
	if acquireScope && strings.TrimSpace(scopeID) == "" {
		return content.FailedHandle("scopeId is required when acquireScope=true.")
	}
	events := o.filterLoadable(found)
	o.lastDiscPre = len(events)
	if len(events) == 0 {
		return content.Completed()
	}
	if acquireScope {
		return o.content.AcquireScope(scopeID, events)
	}
	return o.content.Preload(events, false, "")
}

// preloadAutoBanks preloads banks flagged to load while their category is
// enabled.
func (o *Orchestrator) preloadAutoBanks() {
	var events []*catalog.Descriptor
	for _, bank := range o.catalog.Banks() {
		if !(o.soundOn && bank.LoadWhenSoundEnabled) && !(o.musicOn && bank.LoadWhenMusicEnabled) {
			continue
		}
		events = append(events, o.catalog.Resolve(bank.EventIDs)...)
	}
	events = o.filterLoadable(events)
	if len(events) == 0 {
		return
	}
	h := o.content.Preload(events, false, "")
	slog.Debug("orchestrator: preloading auto banks", "events", len(events), "loads", h.Len())
}

// SetSoundEnabled switches all audio on or off. Turning it off remembers the
// current music, fades everything except UI out and releases all scopes.
// Turning it on preloads the automatic banks and resumes the remembered
// music once its content is ready.
func (o *Orchestrator) SetSoundEnabled(enabled bool) {
	if o.soundOn == enabled && o.musicOn == enabled {
		return
	}
	o.soundOn = enabled
	o.musicOn = enabled

	if !enabled {
		o.captureMusicForRestore()
		o.StopAllSFX(disableSfxFade)
		o.StopMusic(disableMusicFade)
		o.content.ReleaseAllScopes()
		slog.Info("orchestrator: sound disabled")
		return
	}
	o.preloadAutoBanks()
	o.tryRestoreMusic()
	slog.Info("orchestrator: sound enabled")
}

// SoundEnabled reports whether sound effects may play.
func (o *Orchestrator) SoundEnabled() bool { return o.soundOn }

// MusicEnabled reports whether music may play.
func (o *Orchestrator) MusicEnabled() bool { return o.musicOn }
