// Package fsloader implements [audio.Loader] over a file system. Asset keys
// are slash-separated paths relative to the root, with or without an
// extension; a key without one is resolved by trying [Extensions] in order.
//
// Loads run in the background with bounded concurrency and are polled
// through the returned [audio.LoadOp]. Each decode is traced with
// OpenTelemetry.
package fsloader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Loader = (*Loader)(nil)
	_ audio.LoadOp = (*op)(nil)
)

// DefaultConcurrency is the number of decodes that may run at once.
const DefaultConcurrency = 4

const tracerName = "github.com/MrWong99/soundcue/pkg/audio/fsloader"

// Option configures a [Loader].
type Option func(*Loader)

// WithConcurrency limits how many files are decoded at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithTracer sets the tracer used for decode spans. Defaults to the global
// tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithFormat converts every decoded clip to f, so an output that mixes at a
// fixed rate and channel count never steps through mismatched content. A
// zero rate or channel count leaves clips as decoded.
func WithFormat(f audio.Format) Option {
	return func(l *Loader) {
		if f.SampleRate > 0 && f.Channels > 0 {
			l.converter = &audio.FormatConverter{Target: f}
		}
	}
}

// Loader decodes audio files from an [fs.FS].
type Loader struct {
	fsys        fs.FS
	concurrency int
	tracer      trace.Tracer
	converter   *audio.FormatConverter

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// New creates a Loader reading from fsys. Use [os.DirFS] for a directory.
func New(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:        fsys,
		concurrency: DefaultConcurrency,
		tracer:      otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(l)
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.group = new(errgroup.Group)
	l.group.SetLimit(l.concurrency)
	return l
}

// Load implements [audio.Loader]. The decode is cancelled when ctx is done,
// when the op is released, or when the Loader is closed.
func (l *Loader) Load(ctx context.Context, key string) audio.LoadOp {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	o := &op{
		key:    key,
		status: audio.LoadLoading,
		cancel: func() { stop(); cancel() },
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		o.fail(fmt.Errorf("fsloader: load %q: loader closed", key))
		return o
	}

	go l.group.Go(func() error {
		l.decode(ctx, o)
		return nil
	})
	return o
}

// Close cancels every running load and waits for the decoders to exit.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	return l.group.Wait()
}

func (l *Loader) decode(ctx context.Context, o *op) {
	ctx, span := l.tracer.Start(ctx, "fsloader.decode",
		trace.WithAttributes(attribute.String("asset.key", o.key)),
	)
	defer span.End()

	clip, err := l.read(ctx, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(err)
		return
	}
	span.SetAttributes(
		attribute.Int("audio.sample_rate", clip.SampleRate),
		attribute.Int("audio.channels", clip.Channels),
		attribute.Int64("audio.length_ms", clip.Length.Milliseconds()),
	)
	o.complete(clip)
	slog.Debug("fsloader: decoded", "key", o.key, "length", clip.Length, "rate", clip.SampleRate)
}

func (l *Loader) read(ctx context.Context, o *op) (*audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fsloader: load %q: %w", o.key, err)
	}
	name, err := l.Resolve(o.key)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("fsloader: read %q: %w", name, err)
	}
	o.setProgress(0.5)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fsloader: load %q: %w", o.key, err)
	}
	clip, err := Decode(o.key, path.Ext(name), data)
	if err != nil {
		return nil, fmt.Errorf("fsloader: decode %q: %w", name, err)
	}
	if l.converter != nil {
		clip = l.converter.Convert(clip)
	}
	return clip, nil
}

// Resolve maps an asset key to the file it loads from.
func (l *Loader) Resolve(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if !fs.ValidPath(key) || key == "." {
		return "", fmt.Errorf("fsloader: invalid asset key %q", key)
	}
	if ext := strings.ToLower(path.Ext(key)); ext != "" {
		if _, ok := decoders[ext]; ok {
			return key, nil
		}
	}
	for _, ext := range Extensions {
		if _, err := fs.Stat(l.fsys, key+ext); err == nil {
			return key + ext, nil
		}
	}
	return "", fmt.Errorf("fsloader: asset %q: %w", key, fs.ErrNotExist)
}

// op is the [audio.LoadOp] for one file.
type op struct {
	key    string
	cancel func()

	mu       sync.Mutex
	status   audio.LoadStatus
	progress float64
	clip     *audio.Clip
	err      error
	released bool
}

func (o *op) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status == audio.LoadSucceeded || o.status == audio.LoadFailed
}

func (o *op) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *op) Status() audio.LoadStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *op) Result() *audio.Clip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clip
}

func (o *op) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Release cancels an unfinished decode and drops the decoded samples.
func (o *op) Release() {
	o.cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released = true
	o.clip = nil
}

func (o *op) setProgress(p float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = p
}

func (o *op) complete(c *audio.Clip) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return
	}
	o.status = audio.LoadSucceeded
	o.clip = c
	o.progress = 1
}

func (o *op) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = audio.LoadFailed
	o.err = err
	o.progress = 1
}
