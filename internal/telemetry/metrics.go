package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMeterProvider bootstraps the OpenTelemetry MeterProvider with an
// OTLP/gRPC metric exporter targeting the given endpoint. Metrics are
// flushed periodically via a PeriodicReader. The caller must defer
// mp.Shutdown(ctx) to flush pending metrics.
func InitMeterProvider(ctx context.Context, serviceName, endpoint string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// PipelineMetrics counts records moving through the decode/parse/format
// pipeline, split by outcome so a dashboard can tell a quiet source
// apart from a failing one.
type PipelineMetrics struct {
	Decoded  metric.Int64Counter
	Parsed   metric.Int64Counter
	Rejected metric.Int64Counter
	Published metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline's counters against the
// global MeterProvider set by InitMeterProvider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("arc.streamcodec.worker")

	decoded, err := meter.Int64Counter("records.decoded", metric.WithDescription("WAL changes decoded into envelopes"))
	if err != nil {
		return nil, err
	}
	parsed, err := meter.Int64Counter("records.parsed", metric.WithDescription("envelopes parsed into rows"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("records.rejected", metric.WithDescription("envelopes whose pipeline run failed (parse, error removal, format or publish)"))
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter("records.published", metric.WithDescription("formatted payloads published downstream"))
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{Decoded: decoded, Parsed: parsed, Rejected: rejected, Published: published}, nil
}
