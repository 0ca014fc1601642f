package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the provisioning instruments
type Metrics struct {
	// Counters
	ReconcileActions   metric.Int64Counter
	ClientsProvisioned metric.Int64Counter
	Runs               metric.Int64Counter

	// Histograms
	ReconcileDuration metric.Float64Histogram
	StepDuration      metric.Float64Histogram
	RunDuration       metric.Float64Histogram
}

// NewMetrics initializes all provisioning instruments on the meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

// NewNopMetrics returns instruments that record nothing.
func NewNopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func (m *Metrics) initCounters(meter metric.Meter) error {
	var err error

	m.ReconcileActions, err = meter.Int64Counter(
		"stackfleet.reconcile.actions",
		metric.WithDescription("Remote writes performed by the reconciler"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	m.ClientsProvisioned, err = meter.Int64Counter(
		"stackfleet.clients.provisioned",
		metric.WithDescription("Client pipelines finished"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return err
	}

	m.Runs, err = meter.Int64Counter(
		"stackfleet.runs",
		metric.WithDescription("Provisioning runs"),
		metric.WithUnit("{run}"),
	)
	return err
}

func (m *Metrics) initHistograms(meter metric.Meter) error {
	var err error

	m.ReconcileDuration, err = meter.Float64Histogram(
		"stackfleet.reconcile.duration",
		metric.WithDescription("Duration of one upsert including the canonical re-read"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.StepDuration, err = meter.Float64Histogram(
		"stackfleet.pipeline.step.duration",
		metric.WithDescription("Duration of one pipeline step for one client"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.RunDuration, err = meter.Float64Histogram(
		"stackfleet.run.duration",
		metric.WithDescription("Duration of a full provisioning run"),
		metric.WithUnit("s"),
	)
	return err
}

// RecordAction counts one remote write.
func (m *Metrics) RecordAction(ctx context.Context, family, action string) {
	m.ReconcileActions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("action", action),
	))
}

// RecordReconcile records the duration of one upsert.
func (m *Metrics) RecordReconcile(ctx context.Context, family string, d time.Duration, err error) {
	m.ReconcileDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("status", status(err)),
	))
}

// RecordStep records the duration of one pipeline step.
func (m *Metrics) RecordStep(ctx context.Context, step string, d time.Duration, err error) {
	m.StepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status(err)),
	))
}

// RecordClient counts a finished client pipeline.
func (m *Metrics) RecordClient(ctx context.Context, err error) {
	m.ClientsProvisioned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status(err)),
	))
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("status", status(err)))
	m.Runs.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, d.Seconds(), attrs)
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
