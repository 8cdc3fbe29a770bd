// Package telemetry installs the OpenTelemetry tracer provider used by the
// orchestrator and browser spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/entrhq/webtest/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "webtest"

// Runtime holds the installed tracer and its shutdown hook.
type Runtime struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

// Setup installs a tracer provider according to cfg. When tracing is
// disabled the global no-op provider stays in place. With no endpoint spans
// are written to w, which defaults to stdout.
func Setup(ctx context.Context, cfg config.TraceConfig, w io.Writer) (Runtime, error) {
	noop := Runtime{
		Tracer:   otel.Tracer(ServiceName),
		Shutdown: func(context.Context) error { return nil },
	}
	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", ServiceName)),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("otel resource: %w", err)
	}

	var exp sdktrace.SpanExporter
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return Runtime{}, fmt.Errorf("otel otlp exporter: %w", err)
		}
	} else {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if w != nil {
			opts = append(opts, stdouttrace.WithWriter(w))
		}
		exp, err = stdouttrace.New(opts...)
		if err != nil {
			return Runtime{}, fmt.Errorf("otel stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return Runtime{
		Tracer:   tp.Tracer(ServiceName),
		Shutdown: tp.Shutdown,
	}, nil
}
