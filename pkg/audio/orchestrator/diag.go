package orchestrator

import (
	"cmp"
	"slices"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// DirectEventID labels voices playing a raw clip.
const DirectEventID = "<direct>"

// VoiceInfo describes one registered playback.
type VoiceInfo struct {
	Handle  int64     `json:"handle"`
	EventID string    `json:"event"`
	Bus     audio.Bus `json:"bus"`
	Music   bool      `json:"music"`
	Playing bool      `json:"playing"`
}

// DebugVoices lists every registered playback ordered by handle.
func (o *Orchestrator) DebugVoices() []VoiceInfo {
	out := make([]VoiceInfo, 0, len(o.voices))
	for id, av := range o.voices {
		evtID := DirectEventID
		if av.event != nil {
			evtID = av.event.ID
		}
		out = append(out, VoiceInfo{
			Handle:  id,
			EventID: evtID,
			Bus:     av.bus,
			Music:   av.music,
			Playing: av.device != nil && av.device.IsPlaying(),
		})
	}
	slices.SortFunc(out, func(a, b VoiceInfo) int { return cmp.Compare(a.Handle, b.Handle) })
	return out
}

// Stats is an aggregate snapshot of engine state.
type Stats struct {
	Frame        int64 `json:"frame"`
	ActiveVoices int   `json:"active_voices"`
	Pool2DInUse  int   `json:"pool2d_in_use"`
	Pool2DTotal  int   `json:"pool2d_total"`
	Pool3DInUse  int   `json:"pool3d_in_use"`
	Pool3DTotal  int   `json:"pool3d_total"`
	Fades        int   `json:"fades"`

	LoadedClips  int `json:"loaded_clips"`
	LoadingClips int `json:"loading_clips"`
	FailedClips  int `json:"failed_clips"`
	Scopes       int `json:"scopes"`

	DiscoveredEvents       int `json:"discovered_events"`
	DiscoveryRevision      int `json:"discovery_revision"`
	LastDiscoveredPreloads int `json:"last_discovered_preloads"`

	SoundEnabled bool   `json:"sound_enabled"`
	MusicEnabled bool   `json:"music_enabled"`
	Paused       bool   `json:"paused"`
	Snapshot     string `json:"snapshot"`
}

// Stats returns the current diagnostic counters.
func (o *Orchestrator) Stats() Stats {
	c := o.content.Counters()
	s := Stats{
		Frame:                  o.frame,
		ActiveVoices:           len(o.voices),
		Pool2DInUse:            o.pool2D.InUse(),
		Pool2DTotal:            o.pool2D.Total(),
		Pool3DInUse:            o.pool3D.InUse(),
		Pool3DTotal:            o.pool3D.Total(),
		Fades:                  len(o.fades),
		LoadedClips:            c.Loaded,
		LoadingClips:           c.Loading,
		FailedClips:            c.Failed,
		Scopes:                 c.Scopes,
		LastDiscoveredPreloads: o.lastDiscPre,
		SoundEnabled:           o.soundOn,
		MusicEnabled:           o.musicOn,
		Paused:                 o.paused,
		Snapshot:               o.snapshot.name,
	}
	if o.discovery != nil {
		s.DiscoveredEvents = o.discovery.Count()
		s.DiscoveryRevision = o.discovery.Marker()
	}
	return s
}

// ActiveVoiceCount returns the number of registered playbacks.
func (o *Orchestrator) ActiveVoiceCount() int { return len(o.voices) }

// ActiveInstances returns how many instances of the event id are playing.
func (o *Orchestrator) ActiveInstances(id string) int {
	evt, ok := o.catalog.Lookup(id)
	if !ok {
		return 0
	}
	if st := o.states[evt]; st != nil {
		return st.active
	}
	return 0
}
