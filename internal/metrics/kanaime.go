package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Key event outcomes.
const (
	OutcomeConsumed = "consumed"
	OutcomePassed   = "passed"
	OutcomeBusy     = "busy"
	OutcomeFailed   = "failed"
)

// RecordKey records one handled key event.
func (m *Metrics) RecordKey(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.KeyEvents.Add(ctx, 1, attrs)
	m.KeyLatency.Record(ctx, d.Seconds(), attrs)
}

// RecordAction records one executed client action.
func (m *Metrics) RecordAction(ctx context.Context, name string, err error) {
	m.Actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", name),
		attribute.String("status", status(err)),
	))
}

// CompositionOpened increments the open composition gauge.
func (m *Metrics) CompositionOpened(ctx context.Context) {
	m.ActiveCompositions.Add(ctx, 1)
}

// CompositionClosed decrements the open composition gauge.
func (m *Metrics) CompositionClosed(ctx context.Context) {
	m.ActiveCompositions.Add(ctx, -1)
}

// RecordCommit records text committed into the host.
func (m *Metrics) RecordCommit(ctx context.Context, kind string) {
	m.Commits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRPC records an IPC round trip.
func (m *Metrics) RecordRPC(ctx context.Context, service, method string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
	)
	m.RPCDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.RPCErrors.Add(ctx, 1, attrs)
	}
}

// RecordModeSwitch records a change of input mode.
func (m *Metrics) RecordModeSwitch(ctx context.Context, mode string) {
	m.ModeSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordConversion records an engine conversion and its candidate count.
func (m *Metrics) RecordConversion(ctx context.Context, op string, candidates int) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.Conversions.Add(ctx, 1, attrs)
	m.CandidateCount.Record(ctx, int64(candidates), attrs)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
