package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds watch-mode instruments using OTEL semantic conventions
type Metrics struct {
	iterations  metric.Int64Counter
	duration    metric.Float64Histogram
	clients     metric.Int64Gauge
	lastSuccess metric.Int64Gauge
}

// NewMetrics creates the watch-mode instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	iterations, err := meter.Int64Counter(
		"stackfleet.watch.iterations",
		metric.WithDescription("Provisioning runs started by watch mode"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"stackfleet.watch.iteration.duration",
		metric.WithDescription("Duration of watch-mode runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	clients, err := meter.Int64Gauge(
		"stackfleet.watch.clients",
		metric.WithDescription("Clients selected and provisioned by the last run"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}

	lastSuccess, err := meter.Int64Gauge(
		"stackfleet.watch.last_success",
		metric.WithDescription("Unix time of the last successful run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		iterations:  iterations,
		duration:    duration,
		clients:     clients,
		lastSuccess: lastSuccess,
	}, nil
}

// NewNopMetrics returns instruments that record nothing.
func NewNopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("stackfleet.daemon"))
	return m
}

// RecordIteration records one finished run.
func (m *Metrics) RecordIteration(ctx context.Context, r Report, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.iterations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)

	if err != nil {
		return
	}
	m.clients.Record(ctx, int64(r.Selected), metric.WithAttributes(attribute.String("state", "selected")))
	m.clients.Record(ctx, int64(r.Provisioned), metric.WithAttributes(attribute.String("state", "provisioned")))
	m.lastSuccess.Record(ctx, time.Now().Unix())
}
