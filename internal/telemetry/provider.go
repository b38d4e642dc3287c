package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// newResource describes the service. A standalone resource avoids schema
// URL conflicts with resource.Default().
func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)
}

func skipVerifyTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via tls_skip_verify
}

func newSpanExporter(ctx context.Context, cfg *Config) (trace.SpanExporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if cfg.TLSSkipVerify {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(skipVerifyTLS()))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else if cfg.TLSSkipVerify {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyTLS())))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newMetricExporter(ctx context.Context, cfg *Config) (metric.Exporter, error) {
	// Prometheus-compatible backends need cumulative temporality regardless
	// of OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
	cumulative := func(metric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}

	if cfg.Protocol == ProtocolHTTP {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		} else if cfg.TLSSkipVerify {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(skipVerifyTLS()))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if cfg.TLSSkipVerify {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyTLS())))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func newLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if cfg.TLSSkipVerify {
			opts = append(opts, otlploghttp.WithTLSClientConfig(skipVerifyTLS()))
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else if cfg.TLSSkipVerify {
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyTLS())))
	}
	return otlploggrpc.New(ctx, opts...)
}

// newTracerProvider creates a TracerProvider, using the OTLP exporter
// unless one is supplied.
func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource, exp trace.SpanExporter) (*trace.TracerProvider, error) {
	if exp == nil {
		var err error
		exp, err = newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
	}

	var sampler trace.Sampler
	switch {
	case cfg.Sampling.Rate >= 1.0:
		sampler = trace.AlwaysSample()
	case cfg.Sampling.Rate <= 0:
		sampler = trace.NeverSample()
	default:
		sampler = trace.TraceIDRatioBased(cfg.Sampling.Rate)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(sampler)),
	), nil
}

// newMeterProvider creates a MeterProvider, or nil when metrics export is off.
func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource, exp metric.Exporter) (*metric.MeterProvider, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	if exp == nil {
		var err error
		exp, err = newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(cfg.Metrics.ExportInterval.Duration()))),
	), nil
}

// newLoggerProvider creates the LoggerProvider behind the otelzap bridge,
// using the OTLP exporter unless one is supplied.
func newLoggerProvider(ctx context.Context, cfg *Config, res *resource.Resource, exp sdklog.Exporter) (*sdklog.LoggerProvider, error) {
	if exp == nil {
		var err error
		exp, err = newLogExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
	), nil
}

// stripScheme removes http:// or https:// from an endpoint URL.
// The OTLP HTTP exporters expect host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

// Option configures Telemetry creation.
type Option func(*options)

type options struct {
	spanExporter   trace.SpanExporter
	metricExporter metric.Exporter
	logExporter    sdklog.Exporter
	onDegraded     func(error)
}

// WithSpanExporter overrides the OTLP span exporter.
func WithSpanExporter(exp trace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricExporter overrides the OTLP metric exporter.
func WithMetricExporter(exp metric.Exporter) Option {
	return func(o *options) { o.metricExporter = exp }
}

// WithLogExporter overrides the OTLP log exporter.
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) { o.logExporter = exp }
}

// WithDegradedHandler receives provider failures that do not stop startup.
func WithDegradedHandler(fn func(error)) Option {
	return func(o *options) { o.onDegraded = fn }
}
