// Package observe carries the service's observability plumbing:
// OpenTelemetry metric instruments, span helpers, a trace-aware logger and
// the HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exported with the
// Prometheus bridge set up by [InitProvider]. [DefaultMetrics] lazily builds
// instruments on the global meter provider; tests build their own with
// [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/vastaa"

// Stage names one provider call inside a conversation turn.
type Stage string

// Turn stages.
const (
	StageSTT Stage = "stt"
	StageLLM Stage = "llm"
	StageTTS Stage = "tts"
)

// Turn outcomes recorded on [Metrics.Turns].
const (
	TurnCompleted = "completed"
	TurnFailed    = "failed"
	TurnEmpty     = "empty"
	TurnCancelled = "cancelled"
)

// Metrics holds every instrument the service records. The OTel instruments
// are safe for concurrent use.
type Metrics struct {
	// Per-stage latency.
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// TurnDuration covers a full turn from detected utterance to the end of
	// the playback hold.
	TurnDuration metric.Float64Histogram

	// Turns counts finished turns by "outcome".
	Turns metric.Int64Counter

	// ProviderRequests counts provider calls by "stage" and "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls by "stage".
	ProviderErrors metric.Int64Counter

	// ChunksDropped counts capture chunks discarded because a turn was in
	// flight.
	ChunksDropped metric.Int64Counter

	// FramesSent counts playback frames written to clients.
	FramesSent metric.Int64Counter

	// CircuitTransitions counts breaker state changes by "breaker" and "to".
	CircuitTransitions metric.Int64Counter

	// ActiveSessions is the number of connected sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request handling time by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span fast local models up to slow remote ones.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "vastaa.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "vastaa.llm.duration", "Latency of reply generation."},
		{&met.TTSDuration, "vastaa.tts.duration", "Latency of speech synthesis."},
		{&met.TurnDuration, "vastaa.turn.duration", "Duration of a conversation turn including playback."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Turns, "vastaa.turns", "Conversation turns by outcome."},
		{&met.ProviderRequests, "vastaa.provider.requests", "Provider calls by stage and status."},
		{&met.ProviderErrors, "vastaa.provider.errors", "Failed provider calls by stage."},
		{&met.ChunksDropped, "vastaa.chunks.dropped", "Capture chunks dropped while a turn was in flight."},
		{&met.FramesSent, "vastaa.frames.sent", "Playback frames delivered to clients."},
		{&met.CircuitTransitions, "vastaa.circuit.transitions", "Circuit breaker state changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("vastaa.active_sessions",
		metric.WithDescription("Number of connected sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vastaa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built on the global
// meter provider. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records latency and request/error counts for one provider
// call.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, d time.Duration, err error) {
	switch stage {
	case StageSTT:
		m.STTDuration.Record(ctx, d.Seconds())
	case StageLLM:
		m.LLMDuration.Record(ctx, d.Seconds())
	case StageTTS:
		m.TTSDuration.Record(ctx, d.Seconds())
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("status", status),
	))
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordChunkDropped counts one discarded capture chunk.
func (m *Metrics) RecordChunkDropped(ctx context.Context) {
	m.ChunksDropped.Add(ctx, 1)
}

// RecordFrameSent counts one delivered playback frame.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	m.FramesSent.Add(ctx, 1)
}

// RecordCircuitTransition counts a breaker state change. Its signature
// matches the resilience breaker's OnStateChange hook apart from the
// stringified states.
func (m *Metrics) RecordCircuitTransition(breaker, to string) {
	m.CircuitTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("to", to),
	))
}

// SessionOpened and SessionClosed track the live session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) { m.ActiveSessions.Add(ctx, 1) }

func (m *Metrics) SessionClosed(ctx context.Context) { m.ActiveSessions.Add(ctx, -1) }
