package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InitMetrics builds the OTel meter provider with the Prometheus exporter
// and creates every instrument. Disabled metrics yield an empty
// PrometheusMetrics whose record methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("chanakya")

	m := &PrometheusMetrics{}

	if m.requestDuration, err = meter.Float64Histogram(
		"chanakya_request_duration_seconds",
		metric.WithDescription("Pipeline request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	if m.requestsTotal, err = meter.Int64Counter(
		"chanakya_requests_total",
		metric.WithDescription("Total pipeline requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	if m.requestErrorsTotal, err = meter.Int64Counter(
		"chanakya_request_errors_total",
		metric.WithDescription("Total pipeline requests that ended in error"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request errors counter: %w", err)
	}

	if m.stageDuration, err = meter.Float64Histogram(
		"chanakya_stage_duration_seconds",
		metric.WithDescription("Per-stage duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"chanakya_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolCallsTotal, err = meter.Int64Counter(
		"chanakya_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if m.toolErrorsTotal, err = meter.Int64Counter(
		"chanakya_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.llmDuration, err = meter.Float64Histogram(
		"chanakya_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if m.llmInputTokens, err = meter.Int64Counter(
		"chanakya_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	if m.llmOutputTokens, err = meter.Int64Counter(
		"chanakya_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	if m.llmErrorsTotal, err = meter.Int64Counter(
		"chanakya_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"chanakya_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"chanakya_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return m, nil
}
