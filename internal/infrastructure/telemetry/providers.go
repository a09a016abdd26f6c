package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceVersion is reported on every exported resource
const ServiceVersion = "1.0.0"

const (
	shutdownTimeout        = 10 * time.Second
	defaultMetricsInterval = 60 * time.Second
)

// ExportConfig selects the OTLP signals exported by the process. Every signal
// goes to the same collector.
type ExportConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool

	Traces        bool
	SamplingRatio float64
	// SpanProfiles labels profiler samples with the active span id
	SpanProfiles bool

	Metrics         bool
	MetricsInterval time.Duration

	Logs bool
}

// Providers owns the trace, metric and log providers of the process. A
// signal that is not exported keeps the otel global no-op provider.
type Providers struct {
	serviceName string
	logger      *zap.Logger

	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
}

// Setup creates the enabled providers and installs them globally. On error
// the providers created so far are shut down.
func Setup(ctx context.Context, cfg ExportConfig, logger *zap.Logger) (*Providers, error) {
	p := &Providers{serviceName: cfg.ServiceName, logger: logger}
	if !cfg.Traces && !cfg.Metrics && !cfg.Logs {
		logger.Info("Telemetry export disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.Traces {
		if err := p.setupTraces(ctx, cfg, res); err != nil {
			return nil, p.abort(ctx, err)
		}
	}
	if cfg.Metrics {
		if err := p.setupMetrics(ctx, cfg, res); err != nil {
			return nil, p.abort(ctx, err)
		}
	}
	if cfg.Logs {
		if err := p.setupLogs(ctx, cfg, res); err != nil {
			return nil, p.abort(ctx, err)
		}
	}

	logger.Info("Telemetry export initialized",
		zap.String("collector_endpoint", cfg.Endpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("traces", cfg.Traces),
		zap.Bool("metrics", cfg.Metrics),
		zap.Bool("logs", cfg.Logs),
	)
	return p, nil
}

func (p *Providers) setupTraces(ctx context.Context, cfg ExportConfig, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SamplingRatio)),
	)
	if cfg.SpanProfiles {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(p.tracer))
	} else {
		otel.SetTracerProvider(p.tracer)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Providers) setupMetrics(ctx context.Context, cfg ExportConfig, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = defaultMetricsInterval
	}
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(p.meter)
	return nil
}

func (p *Providers) setupLogs(ctx context.Context, cfg ExportConfig, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.logs)
	return nil
}

func (p *Providers) abort(ctx context.Context, cause error) error {
	if err := p.Shutdown(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// newSampler respects the parent decision and samples root spans by ratio
func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// TracesEnabled reports whether spans are exported
func (p *Providers) TracesEnabled() bool { return p.tracer != nil }

// MetricsEnabled reports whether metrics are exported
func (p *Providers) MetricsEnabled() bool { return p.meter != nil }

// LogsEnabled reports whether log records are exported
func (p *Providers) LogsEnabled() bool { return p.logs != nil }

// Meter returns the service meter, a no-op meter when metrics are disabled
func (p *Providers) Meter(opts ...metric.MeterOption) metric.Meter {
	if p.meter == nil {
		return otel.GetMeterProvider().Meter(p.serviceName, opts...)
	}
	return p.meter.Meter(p.serviceName, opts...)
}

// LogCore returns a zap core forwarding entries at or above level to the
// collector. It is a no-op core when logs are not exported.
func (p *Providers) LogCore(level zapcore.Level) zapcore.Core {
	if p.logs == nil {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(p.serviceName, otelzap.WithLoggerProvider(p.logs))
	return &levelFilterCore{Core: core, minLevel: level}
}

// ForceFlush exports everything buffered by the enabled providers
func (p *Providers) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.ForceFlush(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.ForceFlush(ctx))
	}
	if p.logs != nil {
		errs = append(errs, p.logs.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Logs go last so the shutdown of
// the other signals is still exported.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if p.meter != nil {
		if err := p.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Error("Telemetry shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// levelFilterCore adds a minimum level to a core that has none
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), minLevel: c.minLevel}
}
