// Command soundcue is the main entry point for the soundcue playback engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/soundcue/internal/app"
	"github.com/MrWong99/soundcue/internal/config"
	"github.com/MrWong99/soundcue/internal/observe"
	"github.com/MrWong99/soundcue/internal/resilience"
	"github.com/MrWong99/soundcue/pkg/audio"
	"github.com/MrWong99/soundcue/pkg/audio/fsloader"
	"github.com/MrWong99/soundcue/pkg/audio/otodevice"
	"github.com/MrWong99/soundcue/pkg/audio/simdevice"
	"github.com/MrWong99/soundcue/pkg/prefs"
	"github.com/MrWong99/soundcue/pkg/prefs/postgres"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and default volumes when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "soundcue: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "soundcue: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("soundcue starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "soundcue",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	var (
		console  = cfg.Console()
		listener = &audio.Listener{}
		assets   *fsloader.Watcher
	)
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, &assets)

	providers, err := buildProviders(ctx, cfg, reg, config.DeviceEnv{
		Gain:     console.Gain,
		Listener: listener,
	})
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithMixer(console),
		app.WithListener(listener),
		app.WithLogLevel(&level),
	}
	if assets != nil {
		opts = append(opts, app.WithAssetWatcher(assets))
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("engine ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// When the fs loader is configured with watch: true, the watcher it creates
// is stored in *assets for the app to consume.
func registerBuiltinProviders(reg *config.Registry, assets **fsloader.Watcher) {
	// ── Loader ────────────────────────────────────────────────────────────────

	reg.RegisterLoader("fs", func(_ context.Context, entry config.ProviderEntry) (audio.Loader, error) {
		root := entry.String("root", "./assets")
		if _, err := os.Stat(root); err != nil {
			return nil, fmt.Errorf("fs loader: %w", err)
		}
		l := fsloader.New(os.DirFS(root),
			fsloader.WithConcurrency(entry.Int("concurrency", fsloader.DefaultConcurrency)),
			fsloader.WithTracer(observe.Tracer()),
			fsloader.WithFormat(audio.Format{
				SampleRate: entry.Int("sample_rate", 0),
				Channels:   entry.Int("channels", 0),
			}),
		)
		if entry.Bool("watch", false) {
			w, err := fsloader.NewWatcher(root)
			if err != nil {
				_ = l.Close()
				return nil, fmt.Errorf("fs loader: watch %s: %w", root, err)
			}
			*assets = w
		}
		return l, nil
	})

	// ── Device ────────────────────────────────────────────────────────────────

	reg.RegisterDevice("sim", func(_ context.Context, _ config.ProviderEntry, _ config.DeviceEnv) (audio.Output, error) {
		return simdevice.New(nil), nil
	})

	reg.RegisterDevice("oto", func(_ context.Context, entry config.ProviderEntry, env config.DeviceEnv) (audio.Output, error) {
		buffer, err := entry.Duration("buffer", otodevice.DefaultBufferSize)
		if err != nil {
			return nil, err
		}
		return otodevice.Open(
			otodevice.WithSampleRate(entry.Int("sample_rate", otodevice.DefaultSampleRate)),
			otodevice.WithBufferSize(buffer),
			otodevice.WithGain(env.Gain),
			otodevice.WithListener(env.Listener),
		)
	})

	// ── Prefs ─────────────────────────────────────────────────────────────────

	reg.RegisterPrefs("memory", func(context.Context, config.ProviderEntry) (audio.Store, error) {
		return prefs.NewMemory(nil), nil
	})

	reg.RegisterPrefs("file", func(_ context.Context, entry config.ProviderEntry) (audio.Store, error) {
		return prefs.OpenFile(entry.String("path", "volumes.yaml"))
	})

	reg.RegisterPrefs("postgres", func(ctx context.Context, entry config.ProviderEntry) (audio.Store, error) {
		dsn := entry.String("dsn", os.Getenv("SOUNDCUE_PREFS_DSN"))
		if dsn == "" {
			return nil, errors.New("postgres prefs: dsn option or SOUNDCUE_PREFS_DSN is required")
		}
		flushTimeout, err := entry.Duration("flush_timeout", 5*time.Second)
		if err != nil {
			return nil, err
		}
		retryInterval, err := entry.Duration("retry_interval", 5*time.Second)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, dsn,
			postgres.WithProfile(entry.String("profile", postgres.DefaultProfile)),
			postgres.WithFlushTimeout(flushTimeout),
			postgres.WithRetryInterval(retryInterval),
			postgres.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name: "prefs-postgres",
			})),
		)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The device is required; a missing loader or prefs backend falls back to
// the fs loader and an in-memory store.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, env config.DeviceEnv) (*app.Providers, error) {
	ps := &app.Providers{}

	out, err := reg.CreateDevice(ctx, cfg.Providers.Device, env)
	if err != nil {
		return nil, fmt.Errorf("create device provider %q: %w", cfg.Providers.Device.Name, err)
	}
	ps.Output = out
	slog.Info("provider created", "kind", "device", "name", cfg.Providers.Device.Name)

	loaderEntry := cfg.Providers.Loader
	if loaderEntry.Name == "" {
		loaderEntry.Name = "fs"
	}
	l, err := reg.CreateLoader(ctx, loaderEntry)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("create loader provider %q: %w", loaderEntry.Name, err)
	}
	ps.Loader = l
	slog.Info("provider created", "kind", "loader", "name", loaderEntry.Name)

	if name := cfg.Providers.Prefs.Name; name != "" {
		p, err := reg.CreatePrefs(ctx, cfg.Providers.Prefs)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown prefs provider; volumes will not persist", "name", name)
			p = prefs.NewMemory(nil)
		} else if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("create prefs provider %q: %w", name, err)
		} else {
			slog.Info("provider created", "kind", "prefs", "name", name)
		}
		if path := cfg.Providers.Prefs.String("fallback_path", ""); path != "" {
			p, err = withFallback(p, name, path)
			if err != nil {
				_ = out.Close()
				return nil, err
			}
		}
		ps.Prefs = p
	}

	return ps, nil
}

// withFallback chains a file store behind primary so volume changes still
// persist while the primary backend is failing.
func withFallback(primary audio.Store, name, path string) (audio.Store, error) {
	f, err := prefs.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open prefs fallback %q: %w", path, err)
	}
	s := resilience.NewStore(primary, name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3},
	})
	s.AddFallback("file", f)
	slog.Info("prefs fallback enabled", "primary", name, "path", path)
	return s, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        soundcue: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Loader", cfg.Providers.Loader.Name)
	printRow("Device", cfg.Providers.Device.Name)
	printRow("Prefs", cfg.Providers.Prefs.Name)
	printRow("Events", fmt.Sprint(len(cfg.Events)))
	printRow("Banks", fmt.Sprint(len(cfg.Banks)))
	printRow("Snapshots", fmt.Sprint(len(cfg.Mixer.Snapshots)))
	printRow("Tick rate", fmt.Sprintf("%d Hz", cfg.Server.TickRate))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
