// Package observability wires OpenTelemetry tracing for the chat service.
// HTTP spans come from otelgin, database spans from the GORM tracing plugin,
// and the conversation and message services open their own spans through
// Tracer; all of them are exported through the provider installed here.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-social-chat/internal/config"
)

const serviceNamespace = "social"

// newExporter builds the span exporter. Tests swap it for an in-memory one.
var newExporter = func(ctx context.Context, o config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

// SetupOTel installs the global tracer provider and propagator and returns
// the provider's shutdown. With tracing disabled nothing global changes and
// the returned shutdown does nothing.
func SetupOTel(ctx context.Context, cfg config.Config, version string) (func(context.Context) error, error) {
	if !cfg.OTEL.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg.OTEL)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(Sampler(cfg.OTEL.SampleRatio)),
		sdktrace.WithResource(Resource(cfg, version)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Sampler honours the parent's decision and samples new traces at ratio
// (OTEL_TRACES_SAMPLER_ARG). The ends of the range map to the always/never
// samplers.
func Sampler(ratio float64) sdktrace.Sampler {
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

// Resource describes this deployment: service identity plus the chat
// limits that shape the traced work.
func Resource(cfg config.Config, version string) *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.OTEL.ServiceName),
		semconv.ServiceVersion(version),
		semconv.ServiceNamespace(serviceNamespace),
		semconv.DeploymentEnvironment(environment(cfg.GinMode)),
		attribute.Int("chat.window.page_size", cfg.Chat.PageSize),
		attribute.Int("chat.message.max_runes", cfg.Chat.MaxContentRunes),
	)
}

func environment(ginMode string) string {
	switch ginMode {
	case "release":
		return "production"
	case "test":
		return "test"
	default:
		return "development"
	}
}
