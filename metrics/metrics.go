// Package metrics holds the OpenTelemetry instruments of the pipeline and the
// request layer, and the Prometheus bridge that exposes them on /metrics.
//
// Tests should build a Metrics with NewMetrics and an SDK MeterProvider backed
// by a ManualReader so observations can be inspected directly.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/crycare/cry-pipeline"

// Metrics groups every instrument. All fields are safe for concurrent use.
// A nil *Metrics records nothing.
type Metrics struct {
	// PredictionDuration is the wall time of one ProcessAndPredict call.
	PredictionDuration metric.Float64Histogram

	// StageDuration is the time spent in one pipeline stage. Attribute: stage.
	StageDuration metric.Float64Histogram

	// Predictions counts pipeline runs. Attribute: outcome ("ok" or an error kind).
	Predictions metric.Int64Counter

	// Segments counts analysed segments. Attribute: status ("ok", "failed").
	Segments metric.Int64Counter

	// HTTPRequestDuration tracks request handling time. Attributes: method,
	// path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers a short clip (tens of ms) up to a long upload.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PredictionDuration, err = m.Float64Histogram("cry.prediction.duration",
		metric.WithDescription("Latency of one end-to-end prediction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("cry.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Predictions, err = m.Int64Counter("cry.predictions",
		metric.WithDescription("Pipeline runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("cry.segments",
		metric.WithDescription("Analysed segments by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cry.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordPrediction records one finished run.
func (m *Metrics) RecordPrediction(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Predictions.Add(ctx, 1, attrs)
	m.PredictionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStage records the time spent in stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSegments adds ok and failed segment counts.
func (m *Metrics) RecordSegments(ctx context.Context, ok, failed int) {
	if m == nil {
		return
	}
	if ok > 0 {
		m.Segments.Add(ctx, int64(ok), metric.WithAttributes(attribute.String("status", "ok")))
	}
	if failed > 0 {
		m.Segments.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("status", "failed")))
	}
}
