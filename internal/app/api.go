package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/soundcue/internal/observe"
	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/content"
	"github.com/MrWong99/soundcue/pkg/audio/orchestrator"
)

// maxBodyBytes bounds control request bodies.
const maxBodyBytes = 1 << 20

// errNotFound marks lookups of unknown events or banks.
var errNotFound = errors.New("not found")

// Duration is a JSON duration. It accepts a Go duration string ("250ms") or
// a number of milliseconds.
type Duration time.Duration

// UnmarshalJSON implements [json.Unmarshaler].
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %w", err)
	}
	*d = Duration(ms * float64(time.Millisecond))
	return nil
}

// MarshalJSON implements [json.Marshaler].
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ─── Requests and responses ──────────────────────────────────────────────────

// PlayRequest is the body of POST /play.
type PlayRequest struct {
	Event        string      `json:"event"`
	Volume       *float64    `json:"volume,omitempty"`
	Pitch        *float64    `json:"pitch,omitempty"`
	Position     *audio.Vec3 `json:"position,omitempty"`
	AllowOverlap *bool       `json:"allow_overlap,omitempty"`
}

// MusicRequest is the body of POST /music.
type MusicRequest struct {
	Event     string   `json:"event"`
	FadeIn    Duration `json:"fade_in"`
	Crossfade Duration `json:"crossfade"`
	Restart   bool     `json:"restart"`
}

// StopRequest is the body of POST /stop. Exactly one target applies, checked
// in field order; with no target every voice stops.
type StopRequest struct {
	Handle  int64    `json:"handle,omitempty"`
	Event   string   `json:"event,omitempty"`
	SFXOnly bool     `json:"sfx_only,omitempty"`
	FadeOut Duration `json:"fade_out"`
}

// PreloadRequest is the body of POST /preload and PUT /scopes/{id}.
type PreloadRequest struct {
	Events []string `json:"events"`
	Bank   string   `json:"bank,omitempty"`
}

// HandleResponse reports the outcome of a play request. Started is false
// when the request was a no-op (cooldown, instance limit, not loaded...).
type HandleResponse struct {
	Handle  int64 `json:"handle"`
	Started bool  `json:"started"`
}

// LoadResponse reports the state of a preload.
type LoadResponse struct {
	Clips    int     `json:"clips"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// EventInfo describes one catalog event.
type EventInfo struct {
	ID       string    `json:"id"`
	Bus      audio.Bus `json:"bus"`
	Clips    []string  `json:"clips"`
	Loop     bool      `json:"loop"`
	Priority int       `json:"priority"`
	Active   int       `json:"active"`
}

func loadResponse(h *content.LoadHandle) LoadResponse {
	r := LoadResponse{
		Clips:    h.Len(),
		Status:   h.Status().String(),
		Progress: h.Progress(),
	}
	if err := h.Err(); err != nil {
		r.Error = err.Error()
	}
	return r
}

// ─── Routing ─────────────────────────────────────────────────────────────────

// Handler returns the control API with health and metrics endpoints, wrapped
// in the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /play", a.handlePlay)
	mux.HandleFunc("POST /music", a.handleMusic)
	mux.HandleFunc("DELETE /music", a.handleStopMusic)
	mux.HandleFunc("POST /stop", a.handleStop)

	mux.HandleFunc("GET /volume", a.handleVolumes)
	mux.HandleFunc("PUT /volume/{bus}", a.handleSetVolume)
	mux.HandleFunc("POST /mute", a.handleMute)
	mux.HandleFunc("POST /snapshot/{name}", a.handleSnapshot)
	mux.HandleFunc("GET /listener", a.handleListener)
	mux.HandleFunc("PUT /listener", a.handleMoveListener)

	mux.HandleFunc("POST /preload", a.handlePreload)
	mux.HandleFunc("PUT /scopes/{id}", a.handleAcquireScope)
	mux.HandleFunc("DELETE /scopes/{id}", a.handleReleaseScope)
	mux.HandleFunc("DELETE /banks/{id}", a.handleUnloadBank)
	mux.HandleFunc("POST /unload-unused", a.handleUnloadUnused)
	mux.HandleFunc("POST /assets/reload", a.handleReload)

	mux.HandleFunc("POST /sound", a.handleSound)
	mux.HandleFunc("POST /pause", a.handlePause)
	mux.HandleFunc("POST /focus", a.handleFocus)
	mux.HandleFunc("POST /lifecycle", a.handleLifecycle)

	mux.HandleFunc("GET /events", a.handleEvents)
	mux.HandleFunc("GET /stats", a.handleStats)
	mux.HandleFunc("GET /debug/voices", a.handleVoices)

	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// ─── Playback ────────────────────────────────────────────────────────────────

func (a *App) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if !decode(w, r, &req) {
		return
	}
	var opts []orchestrator.PlayOption
	if req.Volume != nil {
		opts = append(opts, orchestrator.WithVolume(*req.Volume))
	}
	if req.Pitch != nil {
		opts = append(opts, orchestrator.WithPitch(*req.Pitch))
	}
	if req.Position != nil {
		opts = append(opts, orchestrator.At(*req.Position))
	}
	if req.AllowOverlap != nil {
		opts = append(opts, orchestrator.AllowOverlap(*req.AllowOverlap))
	}

	res, err := do(r.Context(), a, "play", func(o *orchestrator.Orchestrator) (HandleResponse, error) {
		if _, ok := o.Event(req.Event); !ok {
			return HandleResponse{}, fmt.Errorf("event %q: %w", req.Event, errNotFound)
		}
		h := o.Play(req.Event, opts...)
		return HandleResponse{Handle: h.ID(), Started: h.IsValid()}, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleMusic(w http.ResponseWriter, r *http.Request) {
	var req MusicRequest
	if !decode(w, r, &req) {
		return
	}
	var opts []orchestrator.MusicOption
	if req.FadeIn > 0 {
		opts = append(opts, orchestrator.FadeIn(time.Duration(req.FadeIn)))
	}
	if req.Crossfade > 0 {
		opts = append(opts, orchestrator.Crossfade(time.Duration(req.Crossfade)))
	}
	if req.Restart {
		opts = append(opts, orchestrator.RestartIfSame())
	}

	res, err := do(r.Context(), a, "music", func(o *orchestrator.Orchestrator) (HandleResponse, error) {
		if _, ok := o.Event(req.Event); !ok {
			return HandleResponse{}, fmt.Errorf("event %q: %w", req.Event, errNotFound)
		}
		h := o.PlayMusicByID(req.Event, opts...)
		return HandleResponse{Handle: h.ID(), Started: h.IsValid()}, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleStopMusic(w http.ResponseWriter, r *http.Request) {
	fade, err := queryDuration(r, "fade_out")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	_, err = do(r.Context(), a, "stop_music", func(o *orchestrator.Orchestrator) (struct{}, error) {
		o.StopMusic(fade)
		return struct{}{}, nil
	})
	respond(w, r, map[string]bool{"stopped": true}, err)
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !decode(w, r, &req) {
		return
	}
	fade := time.Duration(req.FadeOut)
	res, err := do(r.Context(), a, "stop", func(o *orchestrator.Orchestrator) (map[string]int, error) {
		switch {
		case req.Handle != 0:
			h := o.Handle(req.Handle)
			if !h.IsValid() {
				return map[string]int{"stopped": 0}, nil
			}
			o.Stop(h, fade)
			return map[string]int{"stopped": 1}, nil
		case req.Event != "":
			if _, ok := o.Event(req.Event); !ok {
				return nil, fmt.Errorf("event %q: %w", req.Event, errNotFound)
			}
			return map[string]int{"stopped": o.StopByEventID(req.Event, fade)}, nil
		case req.SFXOnly:
			n := 0
			for _, v := range o.DebugVoices() {
				if !v.Music && (v.Bus == audio.BusSfx || v.Bus == audio.BusAmbience || v.Bus == audio.BusVoice) {
					n++
				}
			}
			o.StopAllSFX(fade)
			return map[string]int{"stopped": n}, nil
		default:
			n := o.ActiveVoiceCount()
			o.StopAll(fade)
			return map[string]int{"stopped": n}, nil
		}
	})
	respond(w, r, res, err)
}

// ─── Mix ─────────────────────────────────────────────────────────────────────

func (a *App) handleVolumes(w http.ResponseWriter, r *http.Request) {
	res, err := do(r.Context(), a, "volumes", func(o *orchestrator.Orchestrator) (map[string]float64, error) {
		out := make(map[string]float64, len(audio.Buses))
		for _, b := range audio.Buses {
			out[b.String()] = o.Volume01(b)
		}
		return out, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	bus, err := audio.ParseBus(r.PathValue("bus"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req struct {
		Value float64 `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := do(r.Context(), a, "set_volume", func(o *orchestrator.Orchestrator) (map[string]float64, error) {
		o.SetVolume01(bus, req.Value)
		return map[string]float64{bus.String(): o.Volume01(bus)}, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleMute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if !decode(w, r, &req) {
		return
	}
	_, err := do(r.Context(), a, "mute", func(o *orchestrator.Orchestrator) (struct{}, error) {
		o.MuteAll(req.Muted)
		return struct{}{}, nil
	})
	respond(w, r, map[string]bool{"muted": req.Muted}, err)
}

func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, err := queryDuration(r, "duration")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := do(r.Context(), a, "snapshot", func(o *orchestrator.Orchestrator) (map[string]any, error) {
		applied := o.TransitionToSnapshot(name, d)
		return map[string]any{"applied": applied, "active": o.ActiveSnapshot()}, nil
	})
	respond(w, r, res, err)
}

// handleListener and handleMoveListener bypass the engine loop; the listener
// is sampled by the output device, not the orchestrator.
func (a *App) handleListener(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.listener.Position())
}

func (a *App) handleMoveListener(w http.ResponseWriter, r *http.Request) {
	var p audio.Vec3
	if !decode(w, r, &p) {
		return
	}
	a.listener.Move(p)
	writeJSON(w, http.StatusOK, p)
}

// ─── Content ─────────────────────────────────────────────────────────────────

func (a *App) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req PreloadRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := do(r.Context(), a, "preload", func(o *orchestrator.Orchestrator) (LoadResponse, error) {
		if req.Bank != "" {
			if _, ok := o.Catalog().Bank(req.Bank); !ok {
				return LoadResponse{}, fmt.Errorf("bank %q: %w", req.Bank, errNotFound)
			}
			return loadResponse(o.PreloadBank(req.Bank)), nil
		}
		return loadResponse(o.PreloadByIDs(req.Events)), nil
	})
	respond(w, r, res, err)
}

func (a *App) handleAcquireScope(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req PreloadRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := do(r.Context(), a, "acquire_scope", func(o *orchestrator.Orchestrator) (LoadResponse, error) {
		return loadResponse(o.AcquireScope(id, req.Events)), nil
	})
	respond(w, r, res, err)
}

func (a *App) handleReleaseScope(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := do(r.Context(), a, "release_scope", func(o *orchestrator.Orchestrator) (struct{}, error) {
		o.ReleaseScope(id)
		return struct{}{}, nil
	})
	respond(w, r, map[string]string{"released": id}, err)
}

func (a *App) handleUnloadBank(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := do(r.Context(), a, "unload_bank", func(o *orchestrator.Orchestrator) (struct{}, error) {
		if _, ok := o.Catalog().Bank(id); !ok {
			return struct{}{}, fmt.Errorf("bank %q: %w", id, errNotFound)
		}
		o.UnloadBank(id)
		return struct{}{}, nil
	})
	respond(w, r, map[string]string{"unloaded": id}, err)
}

func (a *App) handleUnloadUnused(w http.ResponseWriter, r *http.Request) {
	res, err := do(r.Context(), a, "unload_unused", func(o *orchestrator.Orchestrator) (map[string]int, error) {
		before := o.Stats().LoadedClips
		o.UnloadUnused()
		return map[string]int{"unloaded": before - o.Stats().LoadedClips}, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := do(r.Context(), a, "reload_asset", func(o *orchestrator.Orchestrator) (map[string]bool, error) {
		return map[string]bool{"reloaded": o.ReloadAsset(req.Key)}, nil
	})
	respond(w, r, res, err)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// boolCommand handles endpoints whose body is a single boolean field.
func (a *App) boolCommand(name, field string, apply func(*orchestrator.Orchestrator, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]bool
		if !decode(w, r, &req) {
			return
		}
		v, ok := req[field]
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("missing boolean field %q", field))
			return
		}
		_, err := do(r.Context(), a, name, func(o *orchestrator.Orchestrator) (struct{}, error) {
			apply(o, v)
			return struct{}{}, nil
		})
		respond(w, r, map[string]bool{field: v}, err)
	}
}

func (a *App) handleSound(w http.ResponseWriter, r *http.Request) {
	a.boolCommand("sound", "enabled", (*orchestrator.Orchestrator).SetSoundEnabled)(w, r)
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	a.boolCommand("pause", "paused", (*orchestrator.Orchestrator).PauseAll)(w, r)
}

func (a *App) handleFocus(w http.ResponseWriter, r *http.Request) {
	a.boolCommand("focus", "focused", (*orchestrator.Orchestrator).SetFocus)(w, r)
}

func (a *App) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	a.boolCommand("lifecycle", "paused", (*orchestrator.Orchestrator).SetAppPaused)(w, r)
}

// ─── Diagnostics ─────────────────────────────────────────────────────────────

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	res, err := do(r.Context(), a, "events", func(o *orchestrator.Orchestrator) ([]EventInfo, error) {
		events := o.Catalog().Events()
		out := make([]EventInfo, 0, len(events))
		for _, e := range events {
			out = append(out, EventInfo{
				ID:       e.ID,
				Bus:      e.Bus,
				Clips:    e.Keys(),
				Loop:     e.Loop,
				Priority: e.Priority,
				Active:   o.ActiveInstances(e.ID),
			})
		}
		return out, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	res, err := do(r.Context(), a, "stats", func(o *orchestrator.Orchestrator) (map[string]any, error) {
		return map[string]any{
			"engine": o.Stats(),
			"mixer":  a.console.Params(),
		}, nil
	})
	respond(w, r, res, err)
}

func (a *App) handleVoices(w http.ResponseWriter, r *http.Request) {
	res, err := do(r.Context(), a, "voices", func(o *orchestrator.Orchestrator) ([]orchestrator.VoiceInfo, error) {
		return o.DebugVoices(), nil
	})
	respond(w, r, res, err)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decode reads a JSON body into v. It writes a 400 and returns false on
// failure. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

// queryDuration parses an optional duration query parameter. Bare numbers
// are milliseconds.
func queryDuration(r *http.Request, key string) (time.Duration, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}
	return d, nil
}

// respond writes v as JSON, or maps err onto a status code.
func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		observe.Logger(r.Context()).Debug("control request abandoned", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
