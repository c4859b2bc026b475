// Package metrics records kanaime activity through the OpenTelemetry
// metrics API.
//
// Instruments are created from a metric.MeterProvider so tests can read
// them back with a ManualReader. Production binaries install the Prometheus
// bridge from package tracing and scrape /metrics.
package metrics

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all kanaime metrics.
const meterName = "kanaime"

// Metrics holds the instruments shared by the front end, the engine and the
// candidate window.
type Metrics struct {
	// KeyEvents counts key events by outcome ("consumed", "passed", "busy",
	// "failed").
	KeyEvents metric.Int64Counter

	// KeyLatency tracks time from key classification to the last executed
	// action.
	KeyLatency metric.Float64Histogram

	// Actions counts executed client actions by name and status.
	Actions metric.Int64Counter

	// ActiveCompositions tracks open host composition ranges.
	ActiveCompositions metric.Int64UpDownCounter

	// Commits counts text committed into the host, by kind ("end", "shrink").
	Commits metric.Int64Counter

	// RPCDuration tracks IPC round trips by service and method.
	RPCDuration metric.Float64Histogram

	// RPCErrors counts failed IPC calls by service and method.
	RPCErrors metric.Int64Counter

	// ModeSwitches counts input mode changes by target mode.
	ModeSwitches metric.Int64Counter

	// Conversions counts engine conversions by operation.
	Conversions metric.Int64Counter

	// CandidateCount tracks the number of candidates per conversion.
	CandidateCount metric.Int64Histogram
}

// latencyBuckets are bucket boundaries in seconds. A key press should
// finish well inside one frame.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates the instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.KeyEvents, err = m.Int64Counter("kanaime.key.events",
		metric.WithDescription("Key events seen by the front end by outcome."),
	); err != nil {
		return nil, err
	}
	if met.KeyLatency, err = m.Float64Histogram("kanaime.key.duration",
		metric.WithDescription("Time spent handling one key event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Actions, err = m.Int64Counter("kanaime.actions",
		metric.WithDescription("Client actions executed by name and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCompositions, err = m.Int64UpDownCounter("kanaime.active_compositions",
		metric.WithDescription("Open composition ranges."),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("kanaime.commits",
		metric.WithDescription("Text commits into the host by kind."),
	); err != nil {
		return nil, err
	}
	if met.RPCDuration, err = m.Float64Histogram("kanaime.rpc.duration",
		metric.WithDescription("IPC round trip latency by service and method."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RPCErrors, err = m.Int64Counter("kanaime.rpc.errors",
		metric.WithDescription("Failed IPC calls by service and method."),
	); err != nil {
		return nil, err
	}
	if met.ModeSwitches, err = m.Int64Counter("kanaime.mode.switches",
		metric.WithDescription("Input mode changes by target mode."),
	); err != nil {
		return nil, err
	}
	if met.Conversions, err = m.Int64Counter("kanaime.engine.conversions",
		metric.WithDescription("Engine conversions by operation."),
	); err != nil {
		return nil, err
	}
	if met.CandidateCount, err = m.Int64Histogram("kanaime.engine.candidates",
		metric.WithDescription("Candidates returned per conversion."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20, 50, 100),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide Metrics built on the global meter
// provider. Call it after tracing.InitProvider so the instruments are bound
// to the exporting provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
