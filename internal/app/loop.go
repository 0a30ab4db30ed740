package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/soundcue/internal/observe"
	"github.com/MrWong99/soundcue/pkg/audio/orchestrator"
)

// gaugeEvery is how many frames pass between voice gauge updates.
const gaugeEvery = 30

// command is one unit of work executed on the engine goroutine.
type command struct {
	ctx   context.Context
	name  string
	fn    func(*orchestrator.Orchestrator) (any, error)
	reply chan reply
}

type reply struct {
	v   any
	err error
}

// Do runs fn on the engine goroutine between two ticks and returns its
// result. It blocks until fn has run, ctx is done or the engine stops. name
// labels the command in metrics and logs.
func (a *App) Do(ctx context.Context, name string, fn func(*orchestrator.Orchestrator) (any, error)) (any, error) {
	cmd := command{ctx: ctx, name: name, fn: fn, reply: make(chan reply, 1)}
	select {
	case a.cmds <- cmd:
	case <-a.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// do is the typed form of [App.Do].
func do[T any](ctx context.Context, a *App, name string, fn func(*orchestrator.Orchestrator) (T, error)) (T, error) {
	v, err := a.Do(ctx, name, func(o *orchestrator.Orchestrator) (any, error) {
		return fn(o)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// runEngine owns the orchestrator until ctx is done. Ticks, commands and
// asset change notifications are serialised here.
func (a *App) runEngine(ctx context.Context) error {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.Server.TickInterval())
	defer ticker.Stop()

	var (
		assetKeys <-chan string
		assetErrs <-chan error
	)
	if a.assets != nil {
		assetKeys, assetErrs = a.assets.Events, a.assets.Errors
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil

		case now := <-ticker.C:
			a.tick(ctx, now.Sub(last))
			last = now

		case cmd := <-a.cmds:
			a.exec(cmd)

		case key, ok := <-assetKeys:
			if !ok {
				assetKeys = nil
				continue
			}
			if a.orch.ReloadAsset(key) {
				a.metrics.RecordAssetReload(ctx)
				slog.Info("asset changed on disk, reloading", "key", key)
			}

		case err, ok := <-assetErrs:
			if !ok {
				assetErrs = nil
				continue
			}
			slog.Warn("asset watcher error", "err", err)
		}
	}
}

// tick advances the console and the orchestrator by one frame.
func (a *App) tick(ctx context.Context, dt time.Duration) {
	a.console.Tick(dt)
	a.orch.Tick(dt)
	a.heartbeat.Beat()

	a.frames++
	if a.frames%gaugeEvery == 0 {
		s := a.orch.Stats()
		a.metrics.RecordActiveVoices(ctx, "2d", s.Pool2DInUse)
		a.metrics.RecordActiveVoices(ctx, "3d", s.Pool3DInUse)
	}
}

// exec runs cmd inside a span parented to the caller's request and replies.
// A panicking command is reported as an error and does not take the engine
// down.
func (a *App) exec(cmd command) {
	ctx, span := observe.StartSpan(cmd.ctx, "engine "+cmd.name)
	defer span.End()

	var r reply
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("app: command %q panicked: %v", cmd.name, p)
				slog.Error("engine command panicked", "command", cmd.name, "panic", p)
			}
		}()
		r.v, r.err = cmd.fn(a.orch)
	}()
	observe.Fail(span, r.err)
	a.metrics.RecordCommand(ctx, cmd.name, r.err == nil)
	cmd.reply <- r
}
