// Package app wires all soundcue subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the engine loop next to the control API, and
// Shutdown tears everything down in order.
//
// The orchestrator is single-threaded. Every mutation, whether it comes from
// an HTTP request, a config reload or a changed asset file, is funnelled
// through [App.Do] onto the engine goroutine that also ticks it.
//
// For testing, inject collaborators via functional options (WithMixer,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soundcue/internal/config"
	"github.com/MrWong99/soundcue/internal/health"
	"github.com/MrWong99/soundcue/internal/observe"
	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/catalog"
	"github.com/MrWong99/soundcue/pkg/audio/fsloader"
	"github.com/MrWong99/soundcue/pkg/audio/mixer"
	"github.com/MrWong99/soundcue/pkg/audio/orchestrator"
)

// ErrStopped is returned by [App.Do] once the engine loop has exited.
var ErrStopped = errors.New("app: engine stopped")

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	Loader audio.Loader
	Output audio.Output
	Prefs  audio.Store
}

// App owns all subsystem lifetimes and drives the playback engine.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	console   *mixer.Console
	discovery *catalog.Discovery
	orch      *orchestrator.Orchestrator
	metrics   *observe.Metrics
	heartbeat *health.Heartbeat
	health    *health.Handler
	listener  *audio.Listener

	// Optional hot-reload sources.
	configPath string
	cfgWatcher *config.Watcher
	assets     *fsloader.Watcher
	logLevel   *slog.LevelVar

	// cmds carries work onto the engine goroutine; done is closed when the
	// engine loop exits.
	cmds chan command
	done chan struct{}

	frames int64

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMixer injects a mixing console instead of building one from the
// mixer section of the config.
func WithMixer(c *mixer.Console) Option {
	return func(a *App) { a.console = c }
}

// WithMetrics records engine and HTTP metrics into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch reloads the config file at path while running. Changes to
// the log level and default bus volumes apply immediately.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithAssetWatcher invalidates cached clips whose files change. The App
// takes ownership of w and closes it on Shutdown.
func WithAssetWatcher(w *fsloader.Watcher) Option {
	return func(a *App) { a.assets = w }
}

// WithLogLevel lets config reloads adjust the process log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithListener shares the 3D listener with the output device so the control
// API can move it.
func WithListener(l *audio.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithDiscovery shares a runtime event registry with the engine.
func WithDiscovery(d *catalog.Discovery) Option {
	return func(a *App) { a.discovery = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New builds the console, the catalog and the orchestrator, applies persisted
// volumes and starts loading auto-load banks. It does not start ticking.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Output == nil || providers.Loader == nil {
		return nil, errors.New("app: output and loader providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.discovery == nil {
		a.discovery = catalog.NewDiscovery()
	}
	if a.listener == nil {
		a.listener = &audio.Listener{}
	}

	// ── 1. Mixer ─────────────────────────────────────────────────────────
	a.initMixer()

	// ── 2. Catalog + orchestrator ────────────────────────────────────────
	cat := cfg.Catalog()
	orchOpts := []orchestrator.Option{
		orchestrator.WithMixer(a.console),
		orchestrator.WithRecorder(a.metrics),
		orchestrator.WithDiscovery(a.discovery),
	}
	if providers.Prefs != nil {
		orchOpts = append(orchOpts, orchestrator.WithStore(providers.Prefs))
	}
	a.orch = orchestrator.New(cfg.Orchestrator(), cat, providers.Output, providers.Loader, orchOpts...)
	a.orch.Init()
	a.closers = append(a.closers, func() error {
		a.orch.Shutdown()
		return nil
	})

	// ── 3. Health ────────────────────────────────────────────────────────
	a.initHealth()

	// ── 4. Hot reload ────────────────────────────────────────────────────
	if err := a.initWatchers(); err != nil {
		return nil, fmt.Errorf("app: init watchers: %w", err)
	}

	// ── 5. Provider teardown ─────────────────────────────────────────────
	a.closers = append(a.closers, providers.Output.Close)
	if c, ok := providers.Loader.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	if c, ok := providers.Prefs.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	slog.Info("app initialised",
		"events", cat.Len(),
		"banks", len(cat.Banks()),
		"tick_rate", cfg.Server.TickRate,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMixer builds the console from the mixer config if one wasn't injected.
// The output device reads group gains from the same console, so main.go
// usually injects it.
func (a *App) initMixer() {
	if a.console == nil {
		a.console = a.cfg.Console()
	}
}

// initHealth registers the engine heartbeat and provider checks.
func (a *App) initHealth() {
	// A stalled loop misses many frames before liveness fails.
	maxAge := max(time.Second, 30*a.cfg.Server.TickInterval())
	a.heartbeat = health.NewHeartbeat("engine", maxAge)

	checkers := []health.Checker{a.heartbeat.Checker()}
	if p, ok := a.providers.Prefs.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "prefs", Check: p.Ping})
	}
	checkers = append(checkers, health.Checker{Name: "commands", Check: a.checkCommands})
	a.health = health.New(checkers, health.WithHeartbeat(a.heartbeat))
}

// checkCommands fails when the engine loop does not answer a no-op command.
func (a *App) checkCommands(ctx context.Context) error {
	_, err := do(ctx, a, "ping", func(*orchestrator.Orchestrator) (struct{}, error) {
		return struct{}{}, nil
	})
	return err
}

// initWatchers creates the config watcher and adopts the asset watcher.
func (a *App) initWatchers() error {
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return err
		}
		a.cfgWatcher = w
	}
	if a.assets != nil {
		a.closers = append(a.closers, a.assets.Close)
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the engine loop, the control API and the config watcher, and
// blocks until ctx is cancelled or one of them fails. When ctx is done, Run
// returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.runEngine(gctx) })

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error { return serve(srv, a.cfg.Server.TLS) })
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.cfgWatcher != nil {
		g.Go(func() error { return a.cfgWatcher.Run(gctx) })
	}

	slog.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"tick_interval", a.cfg.Server.TickInterval(),
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// serve runs srv until it is shut down.
func serve(srv *http.Server, tls *config.TLSConfig) error {
	var err error
	if tls != nil {
		err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: http server: %w", err)
}

// onConfigChange runs on the watcher goroutine.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VolumesChanged {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := do(ctx, a, "reload_volumes", func(o *orchestrator.Orchestrator) (struct{}, error) {
			o.SetDefaultVolumes(d.NewVolumes)
			return struct{}{}, nil
		})
		cancel()
		if err != nil {
			slog.Warn("could not apply reloaded default volumes", "err", err)
		} else {
			slog.Info("default volumes reloaded", "volumes", d.NewVolumes)
		}
	}
	for _, e := range d.EventChanges {
		slog.Warn("event definition changed; restart to apply",
			"id", e.ID,
			"added", e.Added,
			"removed", e.Removed,
		)
	}
}

// SlogLevel maps a config log level onto slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. Call it after Run has
// returned. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
