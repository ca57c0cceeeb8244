package db

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Hook
// ─────────────────────────────────────────────────────────────────────────────

// Hook observes every statement. BeforeQuery may return a derived context
// (e.g. one carrying a trace span); that context is what the driver call and
// AfterQuery receive.
//
// Implementations must be safe for concurrent use. A panicking hook is
// recovered and logged; it never fails the statement.
type Hook interface {
	BeforeQuery(ctx context.Context, query string, args []any) context.Context
	// AfterQuery receives the wall-clock time spent in the driver and the
	// already mapped error, nil on success.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// ─────────────────────────────────────────────────────────────────────────────
// hookChain
// ─────────────────────────────────────────────────────────────────────────────

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) context.Context {
	for _, h := range c.hooks {
		ctx = safeBeforeQuery(h, ctx, query, args)
	}
	return ctx
}

// After runs hooks in reverse so that the hook that opened a span first
// closes it last.
func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		safeAfterQuery(c.hooks[i], ctx, query, args, d, err)
	}
}

// afterFunc defers After until the caller knows the statement's outcome.
func (c hookChain) afterFunc(ctx context.Context, query string, args []any, start time.Time) func(error) {
	return func(err error) { c.After(ctx, query, args, time.Since(start), err) }
}

func safeBeforeQuery(h Hook, ctx context.Context, query string, args []any) (out context.Context) {
	out = ctx
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("appointments/db: hook panic in BeforeQuery", zap.Any("panic", r))
			out = ctx
		}
	}()
	if next := h.BeforeQuery(ctx, query, args); next != nil {
		out = next
	}
	return out
}

func safeAfterQuery(h Hook, ctx context.Context, query string, args []any, d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("appointments/db: hook panic in AfterQuery", zap.Any("panic", r))
		}
	}()
	h.AfterQuery(ctx, query, args, d, err)
}

// Operation returns the leading SQL keyword of query in upper case
// ("SELECT", "INSERT", ...), or "OTHER" for an empty statement. It keeps
// metric and span names low-cardinality.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "OTHER"
	}
	return strings.ToUpper(fields[0])
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging hook
// ─────────────────────────────────────────────────────────────────────────────

type LogHookConfig struct {
	// Logger defaults to zap.L().
	Logger *zap.Logger
	// SlowQueryThreshold logs at warn level above this duration. Zero
	// disables slow-query detection.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters. Appointment rows carry patient
	// contact details, so leave this off outside development.
	LogArgs bool
}

// NewLogHook returns a Hook that writes one zap entry per statement: debug
// on success, warn when slow, error on failure.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &logHook{cfg: cfg, logger: logger.Named("db")}
}

type logHook struct {
	cfg    LogHookConfig
	logger *zap.Logger
}

func (h *logHook) BeforeQuery(ctx context.Context, _ string, _ []any) context.Context { return ctx }

func (h *logHook) AfterQuery(_ context.Context, query string, args []any, d time.Duration, err error) {
	fields := []zap.Field{
		zap.String("query", trimQuery(query)),
		zap.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		fields = append(fields, zap.Any("args", args))
	}

	switch {
	case err != nil && !IsNotFound(err):
		h.logger.Error("query failed", append(fields, zap.Error(err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.logger.Warn("slow query", fields...)
	default:
		h.logger.Debug("query", fields...)
	}
}

func trimQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics hook
// ─────────────────────────────────────────────────────────────────────────────

// MetricsCollector receives one observation per statement. operation is
// the value of Operation(query).
type MetricsCollector interface {
	RecordQuery(operation string, duration time.Duration, success bool)
}

func NewMetricsHook(collector MetricsCollector) Hook {
	return &metricsHook{c: collector}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeQuery(ctx context.Context, _ string, _ []any) context.Context { return ctx }

// A NotFound result is a normal outcome for the store, not a failed query.
func (h *metricsHook) AfterQuery(_ context.Context, query string, _ []any, d time.Duration, err error) {
	h.c.RecordQuery(Operation(query), d, err == nil || IsNotFound(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Tracing hook
// ─────────────────────────────────────────────────────────────────────────────

// Tracer opens a span before the statement and finishes it afterwards.
// StartSpan must return a context from which EndSpan can recover the span.
type Tracer interface {
	StartSpan(ctx context.Context, query string) context.Context
	EndSpan(ctx context.Context, err error)
}

func NewTracingHook(t Tracer) Hook { return &tracingHook{t: t} }

type tracingHook struct{ t Tracer }

func (h *tracingHook) BeforeQuery(ctx context.Context, query string, _ []any) context.Context {
	return h.t.StartSpan(ctx, query)
}

func (h *tracingHook) AfterQuery(ctx context.Context, _ string, _ []any, _ time.Duration, err error) {
	h.t.EndSpan(ctx, err)
}
