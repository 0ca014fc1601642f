package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordWriteEvent attaches a remote write to the active span
func RecordWriteEvent(span trace.Span, family, key, action, id string) {
	if span == nil {
		return
	}

	span.AddEvent("stackfleet.remote.write", trace.WithAttributes(
		attribute.String("event.type", "stackfleet.remote.write"),
		attribute.String("family", family),
		attribute.String("key", key),
		attribute.String("action", action),
		attribute.String("id", id),
	))
}

// RecordStepEvent marks a pipeline state transition on the client span
func RecordStepEvent(span trace.Span, client, step, status string, errorMsg string) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "stackfleet.pipeline.step"),
		attribute.String("client", client),
		attribute.String("step", step),
		attribute.String("status", status),
	}
	if errorMsg != "" {
		attrs = append(attrs, attribute.String("error", errorMsg))
	}

	span.AddEvent("stackfleet.pipeline.step", trace.WithAttributes(attrs...))
}
