// Package observe provides application-wide observability primitives for
// soundcue: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. [Metrics] implements
// [audio.Recorder], so the engine reports play outcomes, steals, loads and
// tick timings straight into it. Tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/soundcue/pkg/audio"
)

// meterName is the instrumentation scope name used for all soundcue metrics.
const meterName = "github.com/MrWong99/soundcue"

var _ audio.Recorder = (*Metrics)(nil)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Playback ---

	// PlayRequests counts play requests by outcome. Attributes:
	//   attribute.String("bus", ...), attribute.Bool("music", ...),
	//   attribute.String("result", "started" | <reject reason>)
	PlayRequests metric.Int64Counter

	// VoiceSteals counts in-use voices evicted by a full pool. Attribute:
	//   attribute.String("pool", ...)
	VoiceSteals metric.Int64Counter

	// ActiveVoices is the number of voices in use per pool.
	ActiveVoices metric.Int64Gauge

	// --- Content ---

	// AssetLoads counts settled asset loads. Attribute:
	//   attribute.String("status", "succeeded" | "failed")
	AssetLoads metric.Int64Counter

	// ContentEvictions counts assets released after their grace period.
	ContentEvictions metric.Int64Counter

	// AssetReloads counts assets invalidated by the file watcher.
	AssetReloads metric.Int64Counter

	// --- Engine ---

	// TickLatency tracks how long one engine frame takes to process.
	TickLatency metric.Float64Histogram

	// Commands counts control commands executed on the tick goroutine.
	// Attribute: attribute.String("command", ...)
	Commands metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) around a
// 60 Hz frame budget.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.PlayRequests, err = m.Int64Counter("soundcue.play.requests",
		metric.WithDescription("Play requests by bus, music flag and result."),
	); err != nil {
		return nil, err
	}
	if met.VoiceSteals, err = m.Int64Counter("soundcue.voice.steals",
		metric.WithDescription("In-use voices evicted from a full pool."),
	); err != nil {
		return nil, err
	}
	if met.AssetLoads, err = m.Int64Counter("soundcue.asset.loads",
		metric.WithDescription("Settled asset loads by status."),
	); err != nil {
		return nil, err
	}
	if met.ContentEvictions, err = m.Int64Counter("soundcue.content.evictions",
		metric.WithDescription("Assets unloaded after losing their last holder."),
	); err != nil {
		return nil, err
	}
	if met.AssetReloads, err = m.Int64Counter("soundcue.asset.reloads",
		metric.WithDescription("Assets invalidated because their file changed."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("soundcue.commands",
		metric.WithDescription("Control commands executed by the engine loop."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveVoices, err = m.Int64Gauge("soundcue.active_voices",
		metric.WithDescription("Voices currently in use per pool."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TickLatency, err = m.Float64Histogram("soundcue.tick.duration",
		metric.WithDescription("Processing time of one engine tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("soundcue.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// PlayStarted implements [audio.Recorder].
func (m *Metrics) PlayStarted(bus audio.Bus, music bool) {
	m.PlayRequests.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("bus", bus.String()),
			attribute.Bool("music", music),
			attribute.String("result", "started"),
		),
	)
}

// PlayRejected implements [audio.Recorder].
func (m *Metrics) PlayRejected(bus audio.Bus, reason string) {
	m.PlayRequests.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("bus", bus.String()),
			attribute.Bool("music", false),
			attribute.String("result", reason),
		),
	)
}

// VoiceStolen implements [audio.Recorder].
func (m *Metrics) VoiceStolen(pool string) {
	m.VoiceSteals.Add(context.Background(), 1, metric.WithAttributes(attribute.String("pool", pool)))
}

// LoadFinished implements [audio.Recorder]. Keys are not used as attributes
// to keep cardinality bounded.
func (m *Metrics) LoadFinished(_ string, status audio.LoadStatus) {
	m.AssetLoads.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status.String())))
}

// ContentEvicted implements [audio.Recorder].
func (m *Metrics) ContentEvicted(string) {
	m.ContentEvictions.Add(context.Background(), 1)
}

// TickDuration implements [audio.Recorder].
func (m *Metrics) TickDuration(d time.Duration) {
	m.TickLatency.Record(context.Background(), d.Seconds())
}

// RecordActiveVoices sets the in-use voice gauge for pool.
func (m *Metrics) RecordActiveVoices(ctx context.Context, pool string, n int) {
	m.ActiveVoices.Record(ctx, int64(n), metric.WithAttributes(attribute.String("pool", pool)))
}

// RecordAssetReload counts one watcher-triggered invalidation.
func (m *Metrics) RecordAssetReload(ctx context.Context) {
	m.AssetReloads.Add(ctx, 1)
}

// RecordCommand counts one executed control command and whether it
// succeeded.
func (m *Metrics) RecordCommand(ctx context.Context, command string, ok bool) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("ok", strconv.FormatBool(ok)),
		),
	)
}
