// Package telemetry exports spans and metrics collected during a run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
)

// Telemetry owns the exporters for one process run
type Telemetry struct {
	provider    *sdktrace.TracerProvider
	traceFile   *os.File
	metrics     *metrics.Metrics
	metricsFile string
	logger      *zap.Logger
}

// Setup installs a global tracer provider when a trace file is configured.
// Without one, the otel no-op provider stays in place and spans cost nothing.
func Setup(config model.TelemetryConfig, version string, m *metrics.Metrics, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Telemetry{
		metrics:     m,
		metricsFile: config.MetricsFile,
		logger:      logger,
	}

	if config.TraceFile == "" {
		return t, nil
	}

	f, err := os.Create(config.TraceFile)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "verity"),
		attribute.String("service.version", version),
	)

	t.traceFile = f
	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(t.provider)

	logger.Debug("tracing enabled", zap.String("file", config.TraceFile))
	return t, nil
}

// Shutdown flushes pending spans and writes the metrics textfile
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.provider != nil {
		if err := t.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
		if err := t.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace file: %w", err))
		}
	}

	if t.metricsFile != "" {
		if err := t.metrics.WriteTextfile(t.metricsFile); err != nil {
			errs = append(errs, err)
		} else {
			t.logger.Debug("metrics written", zap.String("file", t.metricsFile))
		}
	}

	return errors.Join(errs...)
}
