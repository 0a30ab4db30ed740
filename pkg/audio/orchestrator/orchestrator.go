// Package orchestrator is the playback front-end of soundcue. An
// [Orchestrator] turns play requests for catalog events (or raw clips) into
// configured, running voices, and owns everything that has to agree about
// them: the two voice pools, the content service, the A/B music channels,
// volume fades, pause state, mixer snapshots and persisted bus volumes.
//
// An Orchestrator is single-threaded. The host calls [Orchestrator.Init]
// once, [Orchestrator.Tick] once per frame and [Orchestrator.Shutdown] at
// exit, and issues every other call from that same goroutine. Gameplay
// operations never return errors: a request that cannot be honoured yields
// an invalid [Handle], false, or nothing.
package orchestrator

import (
	"log/slog"
	"time"

	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/content"
	"github.com/MrWong99/soundcue/pkg/audio/pool"
)

// DefaultUnloadDelay is the grace period between an asset losing its last
// holder and being unloaded.
const DefaultUnloadDelay = 15 * time.Second

// Default attenuation range for bus volumes.
const (
	DefaultMinDB = -80.0
	DefaultMaxDB = 0.0
)

// Config is the static configuration of an [Orchestrator].
type Config struct {
	// OutputGroups routes each bus to a named mixer group.
	OutputGroups map[audio.Bus]string
	// Snapshots maps mixer snapshot names to their transition priority.
	Snapshots map[string]int
	// ExposedParams maps each bus to the mixer parameter controlling its
	// volume in dB.
	ExposedParams map[audio.Bus]string
	// DefaultVolumes is used for buses without a persisted volume.
	DefaultVolumes map[audio.Bus]float64

	MinDB float64
	MaxDB float64

	UnloadDelay time.Duration

	PauseOnFocusLost bool
	PauseOnAppPause  bool
	// UIAlwaysUnscaled measures UI cooldowns in accumulated frame time
	// instead of the real-time clock.
	UIAlwaysUnscaled bool

	Pool2D pool.Settings
	Pool3D pool.Settings
}

// DefaultConfig returns a configuration with every bus at full volume and
// default pools.
func DefaultConfig() Config {
	vols := make(map[audio.Bus]float64, len(audio.Buses))
	for _, b := range audio.Buses {
		vols[b] = 1
	}
	return Config{
		DefaultVolumes:   vols,
		MinDB:            DefaultMinDB,
		MaxDB:            DefaultMaxDB,
		UnloadDelay:      DefaultUnloadDelay,
		PauseOnFocusLost: true,
		PauseOnAppPause:  true,
		UIAlwaysUnscaled: true,
		Pool2D:           pool.DefaultSettings(),
		Pool3D:           pool.DefaultSettings(),
	}
}

func (c Config) defaultVolume(b audio.Bus) float64 {
	if v, ok := c.DefaultVolumes[b]; ok {
		return audio.Clamp01(v)
	}
	return 1
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithClock sets the real-time clock used for cooldowns and content
// eviction. Defaults to [audio.NewWallClock].
func WithClock(c audio.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithMixer sets the mixer receiving bus volumes and snapshot transitions.
func WithMixer(m audio.Mixer) Option {
	return func(o *Orchestrator) { o.mixer = m }
}

// WithStore sets the preference store for bus volumes.
func WithStore(s audio.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRecorder reports engine events to rec.
func WithRecorder(rec audio.Recorder) Option {
	return func(o *Orchestrator) {
		if rec != nil {
			o.rec = rec
		}
	}
}

// WithDiscovery attaches a registry of events registered at runtime.
func WithDiscovery(d *catalog.Discovery) Option {
	return func(o *Orchestrator) { o.discovery = d }
}

// WithContentOptions passes options through to the content service.
func WithContentOptions(opts ...content.Option) Option {
	return func(o *Orchestrator) { o.contentOpts = append(o.contentOpts, opts...) }
}

// eventState is the mutable per-event bookkeeping.
type eventState struct {
	active   int
	sequence int
	lastPlay time.Duration
	played   bool
}

// activeVoice is the registry entry behind a handle.
type activeVoice struct {
	device audio.Device
	voice  *pool.Voice // nil for music
	pool   *pool.VoicePool
	event  *catalog.Descriptor
	clip   *audio.Clip
	bus    audio.Bus
	music  bool
}

// Orchestrator coordinates playback. Construct with [New].
type Orchestrator struct {
	cfg     Config
	catalog *catalog.Catalog
	out     audio.Output
	loader  audio.Loader

	clock       audio.Clock
	mixer       audio.Mixer
	store       audio.Store
	rec         audio.Recorder
	discovery   *catalog.Discovery
	contentOpts []content.Option

	content *content.Service
	pool2D  *pool.VoicePool
	pool3D  *pool.VoicePool
	music   [2]musicChannel

	voices     map[int64]*activeVoice
	nextHandle int64
	states     map[*catalog.Descriptor]*eventState
	fades      []fadeJob
	rng        rng

	frame    int64
	unscaled time.Duration

	paused      bool
	userPause   bool
	focusPause  bool
	appPause    bool
	soundOn     bool
	musicOn     bool
	restore     musicRestore
	lastMaster  float64
	snapshot    activeSnapshot
	lastDiscPre int

	initialized bool
}

// New creates an orchestrator over cat, playing through out and loading
// assets through loader. Call [Orchestrator.Init] before use.
func New(cfg Config, cat *catalog.Catalog, out audio.Output, loader audio.Loader, opts ...Option) *Orchestrator {
	if cfg.MinDB > cfg.MaxDB {
		cfg.MinDB, cfg.MaxDB = cfg.MaxDB, cfg.MinDB
	}
	if cfg.UnloadDelay < 0 {
		cfg.UnloadDelay = 0
	}
	if cat == nil {
		cat = catalog.New(nil)
	}
	o := &Orchestrator{
		cfg:        cfg,
		catalog:    cat,
		out:        out,
		loader:     loader,
		rec:        audio.NopRecorder{},
		voices:     make(map[int64]*activeVoice),
		nextHandle: 1,
		states:     make(map[*catalog.Descriptor]*eventState),
		rng:        newRNG(),
		soundOn:    true,
		musicOn:    true,
		lastMaster: 1,
		snapshot:   activeSnapshot{frame: -1},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = audio.NewWallClock()
	}

	o.content = content.New(loader, append([]content.Option{content.WithRecorder(o.rec)}, o.contentOpts...)...)
	o.pool2D = pool.New("pool2d", out, cfg.Pool2D, pool.WithReleaseCallback(o.onVoiceReleased), pool.WithRecorder(o.rec))
	o.pool3D = pool.New("pool3d", out, cfg.Pool3D, pool.WithReleaseCallback(o.onVoiceReleased), pool.WithRecorder(o.rec))
	for i := range o.music {
		o.music[i] = musicChannel{
			device: out.NewDevice(musicChannelNames[i]),
			handle: noHandle,
		}
		o.music[i].device.SetOutput(cfg.OutputGroups[audio.BusMusic])
		o.music[i].device.SetSpatial(audio.Spatial{})
	}
	return o
}

// Init applies persisted volumes and preloads the banks flagged for
// automatic loading. It is idempotent.
func (o *Orchestrator) Init() {
	if o.initialized {
		return
	}
	o.initialized = true
	o.LoadAndApplyVolumes()
	o.preloadAutoBanks()
	slog.Info("orchestrator: initialised",
		"events", o.catalog.Len(),
		"banks", len(o.catalog.Banks()),
		"pool2d", o.pool2D.Total(),
		"pool3d", o.pool3D.Total(),
	)
}

// Tick advances the engine by one frame of dt: content eviction, voice
// auto-release, fades, pending music restore and music cleanup, in that
// order.
func (o *Orchestrator) Tick(dt time.Duration) {
	start := time.Now()
	if dt < 0 {
		dt = 0
	}
	o.frame++
	o.unscaled += dt
	dsp := o.out.Now()

	o.content.Tick(o.clock.Now(), o.cfg.UnloadDelay)
	o.pool2D.Tick(dsp, dt)
	o.pool3D.Tick(dsp, dt)
	o.updateFades(dt)
	o.tryRestoreMusic()
	o.cleanupFinishedMusic()

	o.rec.TickDuration(time.Since(start))
}

// Shutdown stops every voice and releases all content.
func (o *Orchestrator) Shutdown() {
	for _, h := range o.handles() {
		o.completeStop(h)
	}
	o.fades = o.fades[:0]
	o.content.ForceUnloadAll()
	slog.Info("orchestrator: shut down")
}

// Catalog returns the event catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// Content returns the content service.
func (o *Orchestrator) Content() *content.Service { return o.content }

// Frame returns the number of ticks run so far.
func (o *Orchestrator) Frame() int64 { return o.frame }

// Event looks up an event in the catalog, logging a warning when it is
// missing.
func (o *Orchestrator) Event(id string) (*catalog.Descriptor, bool) {
	if id == "" {
		return nil, false
	}
	evt, ok := o.catalog.Lookup(id)
	if !ok {
		slog.Warn("orchestrator: event not found in catalog", "id", id)
	}
	return evt, ok
}

func (o *Orchestrator) state(evt *catalog.Descriptor) *eventState {
	st := o.states[evt]
	if st == nil {
		st = &eventState{}
		o.states[evt] = st
	}
	return st
}

func (o *Orchestrator) newHandle() int64 {
	id := o.nextHandle
	o.nextHandle++
	return id
}

func (o *Orchestrator) handles() []int64 {
	ids := make([]int64, 0, len(o.voices))
	for id := range o.voices {
		ids = append(ids, id)
	}
	return ids
}

// onVoiceReleased runs whenever a pool frees a voice, including evictions
// and auto-release.
func (o *Orchestrator) onVoiceReleased(v *pool.Voice) {
	if v.Handle == pool.NoHandle {
		return
	}
	o.unregister(v.Handle, false)
}

// unregister forgets handle, optionally stopping its device first.
func (o *Orchestrator) unregister(handle int64, stop bool) {
	av, ok := o.voices[handle]
	if !ok {
		return
	}
	if stop && av.device != nil {
		av.device.Stop()
	}
	o.content.UnregisterInUse(av.clip)
	delete(o.voices, handle)
	o.removeFades(handle)
	if av.event != nil {
		st := o.state(av.event)
		st.active = max(0, st.active-1)
	}
	for i := range o.music {
		if o.music[i].handle == handle {
			o.music[i].handle = noHandle
			o.music[i].event = nil
		}
	}
}

// completeStop stops handle immediately.
func (o *Orchestrator) completeStop(handle int64) {
	av, ok := o.voices[handle]
	if !ok {
		return
	}
	if av.music || av.voice == nil {
		av.device.Stop()
		o.unregister(handle, false)
		return
	}
	if av.voice.Handle != handle {
		o.unregister(handle, true)
		return
	}
	av.pool.Release(av.voice)
}

func (o *Orchestrator) outputGroup(b audio.Bus) string {
	return o.cfg.OutputGroups[b]
}
