package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-mic/pipeline"

type metrics struct {
	requests    metric.Int64Counter
	stages      metric.Float64Histogram
	uploadBytes metric.Int64Histogram
}

// newMetrics registers the pipeline instruments on the global meter provider.
// The Prometheus exporter appends the unit suffixes, yielding
// loqa_mic_requests_total, loqa_mic_stage_duration_seconds and
// loqa_mic_upload_bytes.
func newMetrics(logger *slog.Logger) *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.requests, err = meter.Int64Counter("loqa_mic_requests",
		metric.WithDescription("Ingest requests by endpoint and outcome")); err != nil {
		logger.Warn("failed to create request counter", slogError(err))
	}
	if m.stages, err = meter.Float64Histogram("loqa_mic_stage_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of each pipeline stage")); err != nil {
		logger.Warn("failed to create stage histogram", slogError(err))
	}
	if m.uploadBytes, err = meter.Int64Histogram("loqa_mic_upload",
		metric.WithUnit("By"),
		metric.WithDescription("Size of accepted uploads")); err != nil {
		logger.Warn("failed to create upload histogram", slogError(err))
	}
	return m
}

func (m *metrics) request(ctx context.Context, endpoint, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) stage(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil || m.stages == nil {
		return
	}
	m.stages.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *metrics) upload(ctx context.Context, size int64) {
	if m == nil || m.uploadBytes == nil {
		return
	}
	m.uploadBytes.Record(ctx, size)
}
