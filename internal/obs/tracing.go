package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName string
	// Endpoint is a full OTLP/HTTP URL; empty uses the OTEL_EXPORTER_OTLP_* env vars.
	Endpoint string
	// Exporter is "otlp" or "none".
	Exporter      string
	SamplingRatio float64
	Environment   string
}

func noopShutdown(context.Context) error { return nil }

// InitTracer initialises the global tracer provider and returns a shutdown function.
// Sampling honours the parent decision so upstream traces stay whole.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	var exporter sdktrace.SpanExporter
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Exporter)); kind {
	case "none", "disabled":
		otel.SetTextMapPropagator(propagator)
		return noopShutdown, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		var err error
		if exporter, err = otlptracehttp.New(ctx, opts...); err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", kind)
	}

	ratio := cfg.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	service := cfg.ServiceName
	if service == "" {
		service = "support-hubs"
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)
	return tp.Shutdown, nil
}
