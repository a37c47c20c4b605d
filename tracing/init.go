package tracing

import (
	"context"

	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer installs a global tracer provider exporting over OTLP/HTTP. When tracing is disabled it
// returns a noop shutdown function and leaves the default (noop) provider in place.
func InitTracer(ctx context.Context, serviceName string, tSettings *settings.Settings) (func(context.Context) error, error) {
	if !tSettings.Tracing.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if tSettings.Tracing.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(tSettings.Tracing.Endpoint))
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, errors.NewConfigurationError("cannot initialize otlp exporter", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(tSettings.Tracing.SampleRate))),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("network", tSettings.Network),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
