package orchestrator

import (
	"log/slog"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// PauseAll sets the user pause request.
func (o *Orchestrator) PauseAll(pause bool) {
	o.userPause = pause
	o.applyPauseState()
}

// SetFocus reports whether the host window has input focus. Losing focus
// pauses playback when PauseOnFocusLost is configured.
func (o *Orchestrator) SetFocus(hasFocus bool) {
	o.focusPause = o.cfg.PauseOnFocusLost && !hasFocus
	o.applyPauseState()
}

// SetAppPaused reports whether the host application is suspended. It pauses
// playback when PauseOnAppPause is configured.
func (o *Orchestrator) SetAppPaused(paused bool) {
	o.appPause = o.cfg.PauseOnAppPause && paused
	o.applyPauseState()
}

// Paused reports the effective pause state.
func (o *Orchestrator) Paused() bool { return o.paused }

// applyPauseState pauses or resumes every non-UI voice when the combined
// pause state changes.
func (o *Orchestrator) applyPauseState() {
	target := o.userPause || o.focusPause || o.appPause
	if target == o.paused {
		return
	}
	o.paused = target
	now := o.out.Now()
	for _, av := range o.voices {
		if av.bus == audio.BusUI {
			continue
		}
		switch {
		case av.voice != nil && target:
			av.pool.Pause(av.voice, now)
		case av.voice != nil:
			av.pool.Resume(av.voice, now)
		case target:
			av.device.Pause()
		default:
			av.device.Resume()
		}
	}
	slog.Debug("orchestrator: pause state changed",
		"paused", target,
		"user", o.userPause,
		"focus", o.focusPause,
		"app", o.appPause,
	)
}
