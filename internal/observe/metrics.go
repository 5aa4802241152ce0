// Package observe provides application-wide observability primitives for
// voxcall: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxcall metrics.
const meterName = "github.com/voxcall/voxcall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// ScheduleLead tracks how far ahead of the device clock each playback
	// chunk was scheduled. Values near zero mean the stream is keeping up;
	// growing values mean audio is arriving faster than real time.
	ScheduleLead metric.Float64Histogram

	// SessionDuration tracks the wall-clock length of completed calls.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time on the
	// metrics/health listener. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// CaptureFrames counts microphone frames encoded and handed to the
	// transport.
	CaptureFrames metric.Int64Counter

	// VideoFrames counts video sampler ticks. Use with attribute:
	//   attribute.String("status", "sent"|"skipped"|"dropped")
	VideoFrames metric.Int64Counter

	// PlaybackChunks counts model audio chunks scheduled for rendering.
	PlaybackChunks metric.Int64Counter

	// Interruptions counts barge-ins that cut model playback.
	Interruptions metric.Int64Counter

	// TranscriptTurns counts committed conversation turns.
	TranscriptTurns metric.Int64Counter

	// --- Error counters ---

	// EncodeErrors counts frames dropped due to encoding failures. Use with
	// attribute: attribute.String("kind", "audio"|"video")
	EncodeErrors metric.Int64Counter

	// TransportErrors counts transport-level failures. Use with attribute:
	//   attribute.String("op", ...)
	TransportErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePlaybacks tracks the number of model audio chunks currently
	// rendering.
	ActivePlaybacks metric.Int64UpDownCounter
}

// leadBuckets defines histogram bucket boundaries (in seconds) for playback
// scheduling lead.
var leadBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScheduleLead, err = m.Float64Histogram("voxcall.playback.schedule_lead",
		metric.WithDescription("Lead between a chunk's scheduled start and the device clock."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(leadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxcall.session.duration",
		metric.WithDescription("Wall-clock duration of completed calls."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxcall.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CaptureFrames, err = m.Int64Counter("voxcall.capture.frames",
		metric.WithDescription("Total microphone frames encoded and sent."),
	); err != nil {
		return nil, err
	}
	if met.VideoFrames, err = m.Int64Counter("voxcall.video.frames",
		metric.WithDescription("Total video sampler ticks by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("voxcall.playback.chunks",
		metric.WithDescription("Total model audio chunks scheduled for rendering."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxcall.playback.interruptions",
		metric.WithDescription("Total barge-ins that cut model playback."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptTurns, err = m.Int64Counter("voxcall.transcript.turns",
		metric.WithDescription("Total committed conversation turns."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EncodeErrors, err = m.Int64Counter("voxcall.encode.errors",
		metric.WithDescription("Total frames dropped due to encoding failures, by kind."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voxcall.transport.errors",
		metric.WithDescription("Total transport-level failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxcall.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("voxcall.active_playbacks",
		metric.WithDescription("Number of model audio chunks currently rendering."),
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

// RecordVideoFrame records one video sampler tick with the given status.
func (m *Metrics) RecordVideoFrame(ctx context.Context, status string) {
	m.VideoFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEncodeError records one dropped frame of the given kind.
func (m *Metrics) RecordEncodeError(ctx context.Context, kind string) {
	m.EncodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordTransportError records one transport failure for the given operation.
func (m *Metrics) RecordTransportError(ctx context.Context, op string) {
	m.TransportErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
