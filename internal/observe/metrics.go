// Package observe provides application-wide observability primitives for
// fsgdecoder: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fsgdecoder metrics.
const meterName = "github.com/fsgdecoder/core"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. Metrics implements [decoder.Recorder].
type Metrics struct {
	// --- Frame engine (per-Step, per-utterance) ---

	// StepDuration tracks the wall-clock latency of a single decoder.Step call.
	StepDuration metric.Float64Histogram

	// ActivePNodes tracks the number of active lextree nodes at the end of
	// the frame most recently stepped.
	ActivePNodes metric.Int64Histogram

	// HMMEvalTotal counts HMM VitEval invocations across all steps.
	HMMEvalTotal metric.Int64Counter

	// BeamFactor tracks the dynamic beam-narrowing multiplier in effect for
	// the frame most recently stepped (1.0 when maxhmmpf narrowing is inactive).
	BeamFactor metric.Float64Histogram

	// --- Lattice / hypothesis (per-utterance) ---

	// LatticeNodes, LatticeLinks track the size of the DAG built by the most
	// recent Lattice() call.
	LatticeNodes metric.Int64Histogram
	LatticeLinks metric.Int64Histogram

	// HypLength tracks the word count of the hypothesis returned by Hyp().
	HypLength metric.Int64Histogram

	// --- HTTP / websocket middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// StreamConnections tracks the number of live websocket decode connections.
	StreamConnections metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-frame decode latency, which runs well under a second per step.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StepDuration, err = m.Float64Histogram("fsgdecoder.step.duration",
		metric.WithDescription("Latency of a single decoder Step call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActivePNodes, err = m.Int64Histogram("fsgdecoder.active_pnodes",
		metric.WithDescription("Number of active lextree nodes at the end of a frame."),
	); err != nil {
		return nil, err
	}
	if met.HMMEvalTotal, err = m.Int64Counter("fsgdecoder.hmm_eval.total",
		metric.WithDescription("Total HMM VitEval invocations."),
	); err != nil {
		return nil, err
	}
	if met.BeamFactor, err = m.Float64Histogram("fsgdecoder.beam_factor",
		metric.WithDescription("Dynamic beam-narrowing multiplier in effect for a frame."),
	); err != nil {
		return nil, err
	}
	if met.LatticeNodes, err = m.Int64Histogram("fsgdecoder.lattice.nodes",
		metric.WithDescription("Node count of the most recently built lattice."),
	); err != nil {
		return nil, err
	}
	if met.LatticeLinks, err = m.Int64Histogram("fsgdecoder.lattice.links",
		metric.WithDescription("Link count of the most recently built lattice."),
	); err != nil {
		return nil, err
	}
	if met.HypLength, err = m.Int64Histogram("fsgdecoder.hyp.length",
		metric.WithDescription("Word count of the hypothesis returned by Hyp."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fsgdecoder.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.StreamConnections, err = m.Int64UpDownCounter("fsgdecoder.stream.connections",
		metric.WithDescription("Number of live websocket decode connections."),
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

// The Record* methods below implement decoder.Recorder without this package
// (or pkg/decoder) importing the other's package directly — pkg/decoder only
// depends on the Recorder interface it declares itself.

// RecordStepLatency records the duration of one decoder.Step call.
func (m *Metrics) RecordStepLatency(d time.Duration) {
	m.StepDuration.Record(context.Background(), d.Seconds())
}

// RecordActivePNodes records the active lextree node count for a frame.
func (m *Metrics) RecordActivePNodes(n int) {
	m.ActivePNodes.Record(context.Background(), int64(n))
}

// RecordHMMEval adds n to the running HMM evaluation counter.
func (m *Metrics) RecordHMMEval(n int) {
	m.HMMEvalTotal.Add(context.Background(), int64(n))
}

// RecordBeamFactor records the dynamic beam-narrowing multiplier for a frame.
func (m *Metrics) RecordBeamFactor(f float64) {
	m.BeamFactor.Record(context.Background(), f)
}

// RecordLatticeSize records the node and link counts of a freshly built lattice.
func (m *Metrics) RecordLatticeSize(nodes, links int) {
	ctx := context.Background()
	m.LatticeNodes.Record(ctx, int64(nodes))
	m.LatticeLinks.Record(ctx, int64(links))
}

// RecordHypLength records the word count of a returned hypothesis.
func (m *Metrics) RecordHypLength(words int) {
	m.HypLength.Record(context.Background(), int64(words))
}
