package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tutorlink/tutorlink-api/internal/config"
)

// Runtime owns the OTel providers of the process. The logger provider comes
// from InitLogging and is nil when log export is off.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	logger.Info("observability runtime ready",
		"service", cfg.OTELServiceName,
		"metrics", cfg.OTELMetricsEnabled,
		"tracing", cfg.OTELTracingEnabled,
		"logs", lp != nil,
	)
	return &Runtime{MeterProvider: mp, TracerProvider: tp, LoggerProvider: lp}, nil
}

// Shutdown flushes and stops every provider, logs last.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	type stopper interface{ Shutdown(context.Context) error }
	steps := []struct {
		name string
		p    stopper
		set  bool
	}{
		{"tracer", r.TracerProvider, r.TracerProvider != nil},
		{"meter", r.MeterProvider, r.MeterProvider != nil},
		{"logger", r.LoggerProvider, r.LoggerProvider != nil},
	}
	var errs []error
	for _, s := range steps {
		if !s.set {
			continue
		}
		if err := s.p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s provider: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
