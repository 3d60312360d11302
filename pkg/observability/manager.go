package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/chanakya-ai/chanakya/pkg/logger"
)

// Config gathers the telemetry sections of the application config. Both
// sections default to disabled.
type Config struct {
	Tracing TracerConfig  `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Manager owns the process-wide telemetry lifecycle: Initialize installs
// the global tracer provider and the metric instruments, Shutdown flushes
// batched spans. With both sections disabled the providers are noops and
// there is nothing to flush.
type Manager struct {
	mu             sync.Mutex
	cfg            Config
	tracerProvider trace.TracerProvider
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:            cfg,
		tracerProvider: noop.NewTracerProvider(),
	}
}

// Initialize sets up tracing and metrics and publishes the metric recorder
// that GetGlobalMetrics hands to the pipeline. Called once at startup.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.cfg.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(ctx, m.cfg.Metrics)
	if err != nil {
		return err
	}
	SetGlobalMetrics(metrics)

	logger.GetLogger().Debug("telemetry_initialized",
		"tracing", m.cfg.Tracing.Enabled, "metrics", m.cfg.Metrics.Enabled)
	return nil
}

// Shutdown flushes pending spans. The noop provider installed for a
// disabled config has no Shutdown method, so this returns nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return sd.Shutdown(ctx)
	}
	return nil
}
