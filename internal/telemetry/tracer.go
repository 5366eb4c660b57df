// Package telemetry bootstraps OpenTelemetry tracing for cmd/worker,
// which installs the tracer provider; cmd/worker starts no spans of its
// own. Sibling of packages/go-core/telemetry/metrics.go, which
// builds a meter provider off the same OTLP/gRPC exporter family — this
// builds the tracer provider, the pattern used for tracing elsewhere in
// the teacher's apps (e.g. apps/discovery-service/cmd/api/main.go's
// telemetry.InitTracer call).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer bootstraps the OpenTelemetry TracerProvider with an
// OTLP/gRPC span exporter targeting the given endpoint (e.g.
// "jaeger:4317"). The caller must defer tp.Shutdown(ctx) to flush
// pending spans.
func InitTracer(ctx context.Context, serviceName string, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}
