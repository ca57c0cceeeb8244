package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/db"
)

const instrumentationName = "github.com/Skryldev/appointments"

// InitTracer installs the global tracer provider. With tracing disabled the
// provider records nothing and exports nowhere. Callers must Shutdown the
// returned provider to flush pending spans.
func InitTracer(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// db.Tracer
// ─────────────────────────────────────────────────────────────────────────────

type dbTracer struct {
	tracer trace.Tracer
	system string
}

// NewDBTracer returns a db.Tracer that opens one client span per statement.
// system is the db.system attribute ("postgresql", "mysql", "sqlite").
// A nil provider means the global one.
func NewDBTracer(tp trace.TracerProvider, system string) db.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &dbTracer{tracer: tp.Tracer(instrumentationName + "/db"), system: system}
}

func (t *dbTracer) StartSpan(ctx context.Context, query string) context.Context {
	ctx, _ = t.tracer.Start(ctx, "db."+db.Operation(query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.statement", query),
		),
	)
	return ctx
}

func (t *dbTracer) EndSpan(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil && !db.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// DBSystem maps a driver name to the OpenTelemetry db.system value.
func DBSystem(driverName string) string {
	switch driverName {
	case "postgres", "pgx":
		return "postgresql"
	case "sqlite3":
		return "sqlite"
	}
	return driverName
}
