package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "github.com/wolfeidau/bundler"
	tracerName = "github.com/wolfeidau/bundler"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Graph metrics
	ModulesTotal      metric.Int64Counter
	EdgesTotal        metric.Int64Counter
	TransformDuration metric.Float64Histogram
	TransformErrors   metric.Int64Counter
	ResolveErrors     metric.Int64Counter

	// Split metrics
	ChunksTotal     metric.Int64Counter
	PromotedModules metric.Int64Counter

	// Emit metrics
	BytesEmitted  metric.Int64Counter
	FilesEmitted  metric.Int64Counter
	WriteRetries  metric.Int64Counter
	BuildDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it from the
// global meter provider if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

// NewMetrics creates all metric instruments on the given meter
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	m.ModulesTotal, _ = meter.Int64Counter(
		"bundler.graph.modules.total",
		metric.WithDescription("Total number of modules added to the module graph"),
		metric.WithUnit("{module}"),
	)

	m.EdgesTotal, _ = meter.Int64Counter(
		"bundler.graph.edges.total",
		metric.WithDescription("Total number of import edges discovered"),
		metric.WithUnit("{edge}"),
	)

	m.TransformDuration, _ = meter.Float64Histogram(
		"bundler.transform.duration",
		metric.WithDescription("Duration of a module's transform chain"),
		metric.WithUnit("ms"),
	)

	m.TransformErrors, _ = meter.Int64Counter(
		"bundler.transform.errors.total",
		metric.WithDescription("Total number of transform chain failures"),
		metric.WithUnit("{error}"),
	)

	m.ResolveErrors, _ = meter.Int64Counter(
		"bundler.resolve.errors.total",
		metric.WithDescription("Total number of unresolvable import specifiers"),
		metric.WithUnit("{error}"),
	)

	m.ChunksTotal, _ = meter.Int64Counter(
		"bundler.split.chunks.total",
		metric.WithDescription("Total number of chunks produced by the splitter"),
		metric.WithUnit("{chunk}"),
	)

	m.PromotedModules, _ = meter.Int64Counter(
		"bundler.split.promoted_modules.total",
		metric.WithDescription("Total number of modules promoted into shared chunks"),
		metric.WithUnit("{module}"),
	)

	m.BytesEmitted, _ = meter.Int64Counter(
		"bundler.emit.bytes.total",
		metric.WithDescription("Total number of bytes written to the output directory"),
		metric.WithUnit("By"),
	)

	m.FilesEmitted, _ = meter.Int64Counter(
		"bundler.emit.files.total",
		metric.WithDescription("Total number of files written to the output directory"),
		metric.WithUnit("{file}"),
	)

	m.WriteRetries, _ = meter.Int64Counter(
		"bundler.emit.write_retries.total",
		metric.WithDescription("Total number of retried output writes"),
		metric.WithUnit("{retry}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"bundler.build.duration",
		metric.WithDescription("Duration of a complete build"),
		metric.WithUnit("ms"),
	)

	return m
}
