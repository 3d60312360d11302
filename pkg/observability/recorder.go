package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records pipeline-level measurements. A nil Metrics from
// GetGlobalMetrics means metrics are disabled.
type Metrics interface {
	RecordRequest(ctx context.Context, tool string, duration time.Duration, err error)
	RecordStage(ctx context.Context, stage string, duration time.Duration)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, respSize int)
}

type PrometheusMetrics struct {
	requestDuration    metric.Float64Histogram
	requestsTotal      metric.Int64Counter
	requestErrorsTotal metric.Int64Counter

	stageDuration metric.Float64Histogram

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	httpDuration      metric.Float64Histogram
	httpRequestsTotal metric.Int64Counter
}

func (m *PrometheusMetrics) RecordRequest(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.requestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
	}

	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.requestErrorsTotal != nil {
		m.requestErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}

	m.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.toolErrorsTotal != nil {
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, respSize int) {
	if m == nil || m.httpDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", statusCode),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
