package common

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Trace exporters selectable with --trace-exporter.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

type TracingOpts struct {
	// Exporter is one of TraceExporterNone, TraceExporterStdout or TraceExporterOTLP.
	Exporter string
	// OTLPEndpoint is the collector URL for the otlp exporter,
	// e.g. http://localhost:4318. Empty uses the OTEL_EXPORTER_OTLP_* variables.
	OTLPEndpoint string
	Service      string
	Version      string

	// Output receives stdout-exported spans. Defaults to os.Stdout.
	Output io.Writer
}

// SetupTracing registers a global tracer provider for the selected exporter.
// With TraceExporterNone nothing is registered and the global no-op provider
// stays in place. The returned shutdown function flushes pending spans.
func SetupTracing(ctx context.Context, opts *TracingOpts) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch opts.Exporter {
	case "", TraceExporterNone:
		return noop, nil
	case TraceExporterStdout:
		output := opts.Output
		if output == nil {
			output = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(output))
	case TraceExporterOTLP:
		var exporterOpts []otlptracehttp.Option
		if opts.OTLPEndpoint != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(opts.OTLPEndpoint))
		}
		exporter, err = otlptracehttp.New(ctx, exporterOpts...)
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", opts.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("could not create %s trace exporter: %w", opts.Exporter, err)
	}

	service := opts.Service
	if service == "" {
		service = PackageName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(opts.Version),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
