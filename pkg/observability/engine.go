package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics records App Ops engine activity. A nil *EngineMetrics is a
// no-op.
type EngineMetrics struct {
	decisions   metric.Int64Counter
	modeChanges metric.Int64Counter
	activeSpans metric.Int64UpDownCounter
	events      metric.Int64Counter
}

// NewEngineMetrics creates the engine instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter("appops.decisions.total",
		metric.WithDescription("Mode evaluations by call and resulting mode"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("decisions counter: %w", err)
	}

	m.modeChanges, err = meter.Int64Counter("appops.mode_changes.total",
		metric.WithDescription("Effective mode changes by op and scope"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("mode changes counter: %w", err)
	}

	m.activeSpans, err = meter.Int64UpDownCounter("appops.ops.active",
		metric.WithDescription("Currently active (op, uid, package) aggregates"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, fmt.Errorf("active ops gauge: %w", err)
	}

	m.events, err = meter.Int64Counter("appops.watch.events.total",
		metric.WithDescription("Watcher events published by class"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("events counter: %w", err)
	}
	return m, nil
}

// RecordDecision counts one evaluation.
func (m *EngineMetrics) RecordDecision(ctx context.Context, call, op, mode string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(DecisionAttributes(call, op, mode)...))
}

// RecordModeChange counts one effective mode change. scope is "uid" or
// "package".
func (m *EngineMetrics) RecordModeChange(ctx context.Context, op, scope string) {
	if m == nil {
		return
	}
	m.modeChanges.Add(ctx, 1, metric.WithAttributes(AttrOp.String(op), AttrScope.String(scope)))
}

// RecordActive moves the active gauge by delta.
func (m *EngineMetrics) RecordActive(ctx context.Context, op string, delta int64) {
	if m == nil {
		return
	}
	m.activeSpans.Add(ctx, delta, metric.WithAttributes(AttrOp.String(op)))
}

// RecordEvent counts one published watcher event.
func (m *EngineMetrics) RecordEvent(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attributeClass(class)))
}
