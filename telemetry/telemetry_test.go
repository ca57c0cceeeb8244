package telemetry_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/models"
	"github.com/Skryldev/appointments/telemetry"
)

func TestMetrics_Recorders(t *testing.T) {
	m := telemetry.NewMetrics("appointments", prometheus.NewRegistry())

	m.AppointmentCreated()
	m.AppointmentCreated()
	m.AppointmentDeleted()
	m.StatusChanged(models.StatusConfirmed)
	m.StatusChanged(models.StatusConfirmed)
	m.StatusChanged(models.StatusCancelled)
	m.ObserveRequest("GET", "/api/appointments/:id", 404, 3*time.Millisecond)

	if got := testutil.ToFloat64(m.AppointmentsCreated); got != 2 {
		t.Fatalf("created = %v", got)
	}
	if got := testutil.ToFloat64(m.AppointmentsDeleted); got != 1 {
		t.Fatalf("deleted = %v", got)
	}
	if got := testutil.ToFloat64(m.StatusChanges.WithLabelValues("Confirmed")); got != 2 {
		t.Fatalf("confirmed changes = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/appointments/:id", "404")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := telemetry.NewMetrics("appointments", prometheus.NewRegistry())
	m.AppointmentCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "appointments_appointments_created_total 1") {
		t.Fatalf("exposition missing counter:\n%s", rec.Body.String())
	}
}

func TestDBHooks_MetricsAndSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := telemetry.NewMetrics("appointments", prometheus.NewRegistry())

	database, err := db.Open(db.Config{
		DSN:          ":memory:",
		DriverName:   "sqlite3",
		MaxOpenConns: 1,
		Hooks: []db.Hook{
			db.NewMetricsHook(m),
			db.NewTracingHook(telemetry.NewDBTracer(tp, telemetry.DBSystem("sqlite3"))),
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	if _, err := database.Exec(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := database.Exec(ctx, `INSERT INTO missing_table VALUES (1)`); err == nil {
		t.Fatal("expected error")
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "db.CREATE" || spans[1].Name() != "db.INSERT" {
		t.Fatalf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("failed statement span status = %v", spans[1].Status())
	}

	if n := testutil.CollectAndCount(m.DBQueryDuration); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	tp, err := telemetry.InitTracer(context.Background(), config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDBSystem(t *testing.T) {
	for in, want := range map[string]string{"pgx": "postgresql", "postgres": "postgresql", "sqlite3": "sqlite", "mysql": "mysql"} {
		if got := telemetry.DBSystem(in); got != want {
			t.Errorf("DBSystem(%q) = %q, want %q", in, got, want)
		}
	}
}
