package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/models"
	"github.com/Skryldev/appointments/repo"
	"github.com/Skryldev/appointments/telemetry"
)

func init() { gin.SetMode(gin.TestMode) }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// brokenStore fails every call with a driver-level error.
type brokenStore struct{ repo.AppointmentRepository }

func (brokenStore) Find(context.Context, models.AppointmentFilter) ([]*models.Appointment, error) {
	return nil, &db.DBError{Sentinel: db.ErrConnectionFailed, Cause: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
}

func newTestRouter(t *testing.T, opts RouterOptions) (*gin.Engine, repo.AppointmentRepository) {
	t.Helper()
	store := repo.NewMemoryAppointmentRepo()
	if _, err := repo.Seed(context.Background(), store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := engine.New(store, engine.WithClock(engine.FixedClock(models.MustParseDate("2025-12-15"))))
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	return NewRouter(svc, opts), store
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, out
}

// ─────────────────────────────────────────────────────────────────────────────
// Routes
// ─────────────────────────────────────────────────────────────────────────────

func TestRoot(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	rec, body := do(t, r, "GET", "/", "")
	if rec.Code != 200 || body["status"] != "healthy" || body["version"] != "1.0.0" {
		t.Fatalf("root = %d %v", rec.Code, body)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatal("missing request id header")
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{Health: pingFunc(func(context.Context) error { return nil })})
	if rec, body := do(t, r, "GET", "/health", ""); rec.Code != 200 || body["status"] != "UP" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}

	down, _ := newTestRouter(t, RouterOptions{Health: pingFunc(func(context.Context) error { return errors.New("down") })})
	if rec, body := do(t, down, "GET", "/health", ""); rec.Code != 503 || body["status"] != "DOWN" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestListAppointments(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})

	tests := []struct {
		query string
		code  int
		count float64
	}{
		{"", 200, 12},
		{"?date=2025-12-15", 200, 3},
		{"?status=Confirmed", 200, 2},
		{"?status=completed", 200, 3},
		{"?date=2025-12-15&status=Scheduled", 200, 1},
		{"?status=Bogus", 200, 0},
		{"?status=", 200, 12},
		{"?date=15-12-2025", 400, 0},
	}
	for _, tt := range tests {
		rec, body := do(t, r, "GET", "/api/appointments"+tt.query, "")
		if rec.Code != tt.code {
			t.Fatalf("%s: status %d, body %s", tt.query, rec.Code, rec.Body)
		}
		if tt.code != 200 {
			if body["success"] != false {
				t.Fatalf("%s: error body %v", tt.query, body)
			}
			continue
		}
		if body["count"] != tt.count || len(body["appointments"].([]any)) != int(tt.count) {
			t.Fatalf("%s: count %v", tt.query, body["count"])
		}
	}
}

func TestListAppointments_Shape(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	_, body := do(t, r, "GET", "/api/appointments?date=2025-12-15", "")

	first := body["appointments"].([]any)[0].(map[string]any)
	if first["patient_name"] != "Rahul Sharma" || first["appointment_time"] != "09:00:00" || first["appointment_date"] != "2025-12-15" {
		t.Fatalf("first = %v", first)
	}
	second := body["appointments"].([]any)[1].(map[string]any)
	if second["abha_id"] != nil {
		t.Fatalf("absent abha_id should be null, got %v", second["abha_id"])
	}
}

func TestGetAppointment(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})

	if rec, body := do(t, r, "GET", "/api/appointments/1", ""); rec.Code != 200 || body["appointment"] == nil {
		t.Fatalf("get = %d %v", rec.Code, body)
	}
	if rec, body := do(t, r, "GET", "/api/appointments/999", ""); rec.Code != 404 || body["error"] != "Appointment not found" {
		t.Fatalf("missing = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, r, "GET", "/api/appointments/abc", ""); rec.Code != 400 {
		t.Fatalf("bad id = %d", rec.Code)
	}
}

func TestCreateAppointment(t *testing.T) {
	r, store := newTestRouter(t, RouterOptions{})

	payload := `{
		"patient_name": "Neha Kulkarni",
		"appointment_date": "2025-12-22",
		"appointment_time": "10:15",
		"duration": 30,
		"doctor_name": "Dr. Anita Desai",
		"status": "scheduled",
		"mode": "Virtual",
		"email": "neha.kulkarni@email.com",
		"notes": ""
	}`
	rec, body := do(t, r, "POST", "/api/appointments", payload)
	if rec.Code != 200 {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	if _, wrapped := body["appointment"]; wrapped {
		t.Fatalf("create should return the bare record, got %v", body)
	}
	appt := body
	if appt["id"] != float64(13) || appt["status"] != "Scheduled" || appt["appointment_time"] != "10:15:00" || appt["notes"] != nil {
		t.Fatalf("appointment = %v", appt)
	}
	if n, _ := store.Count(context.Background()); n != 13 {
		t.Fatalf("count = %d", n)
	}
}

func TestCreateAppointment_Invalid(t *testing.T) {
	r, store := newTestRouter(t, RouterOptions{})

	rec, body := do(t, r, "POST", "/api/appointments", `{"patient_name":"","appointment_date":"2025-12-22","appointment_time":"10:00","duration":0,"doctor_name":"Dr. X","status":"Pending","mode":"Virtual","email":"not-an-email"}`)
	if rec.Code != 400 || body["error"] != "validation failed" {
		t.Fatalf("create = %d %v", rec.Code, body)
	}
	fields := body["fields"].([]any)
	want := map[string]bool{"patient_name": true, "duration": true, "status": true, "email": true}
	for _, f := range fields {
		delete(want, f.(string))
	}
	if len(want) != 0 {
		t.Fatalf("missing fields %v in %v", want, fields)
	}

	if rec, _ := do(t, r, "POST", "/api/appointments", `{"appointment_date":"2025/12/22"}`); rec.Code != 400 {
		t.Fatalf("bad date = %d", rec.Code)
	}
	if rec, _ := do(t, r, "POST", "/api/appointments", `{`); rec.Code != 400 {
		t.Fatalf("bad json = %d", rec.Code)
	}
	if n, _ := store.Count(context.Background()); n != 12 {
		t.Fatalf("count = %d", n)
	}
}

func TestUpdateStatus(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})

	rec, body := do(t, r, "PUT", "/api/appointments/2/status", `{"status":"Confirmed"}`)
	if rec.Code != 200 || body["message"] != "Appointment status updated to Confirmed" {
		t.Fatalf("update = %d %v", rec.Code, body)
	}

	rec, body = do(t, r, "PUT", "/api/appointments/2/status", `{"status":"Bogus"}`)
	if rec.Code != 400 || !strings.Contains(body["error"].(string), "Cancelled") {
		t.Fatalf("bogus = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, r, "PUT", "/api/appointments/999/status", `{"status":"Confirmed"}`); rec.Code != 404 {
		t.Fatalf("missing = %d", rec.Code)
	}
	if rec, _ := do(t, r, "PUT", "/api/appointments/2/status", `{}`); rec.Code != 400 {
		t.Fatalf("empty body = %d", rec.Code)
	}
}

func TestDeleteAppointment(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})

	rec, body := do(t, r, "DELETE", "/api/appointments/5", "")
	if rec.Code != 200 || body["message"] != "Appointment 5 deleted successfully" {
		t.Fatalf("delete = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, r, "DELETE", "/api/appointments/5", ""); rec.Code != 404 {
		t.Fatalf("second delete = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	rec, body := do(t, r, "GET", "/api/stats", "")
	if rec.Code != 200 {
		t.Fatalf("stats = %d", rec.Code)
	}
	st := body["stats"].(map[string]any)
	want := map[string]float64{"today_count": 3, "confirmed_count": 2, "upcoming_count": 9, "virtual_count": 5, "total_count": 12}
	for k, v := range want {
		if st[k] != v {
			t.Fatalf("%s = %v, want %v", k, st[k], v)
		}
	}
}

func TestStoreErrorHidesDetail(t *testing.T) {
	r := NewRouter(engine.New(brokenStore{}), RouterOptions{})
	rec, body := do(t, r, "GET", "/api/appointments", "")
	if rec.Code != 500 || body["error"] != "Database error" {
		t.Fatalf("broken store = %d %v", rec.Code, body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatal("driver detail leaked to client")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestID_Propagates(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "req-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}})
	for i := 0; i < 2; i++ {
		if rec, _ := do(t, r, "GET", "/api/stats", ""); rec.Code != 200 {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec, body := do(t, r, "GET", "/api/stats", "")
	if rec.Code != http.StatusTooManyRequests || body["error"] != "rate limit exceeded" {
		t.Fatalf("third request = %d %v", rec.Code, body)
	}
	// Routes outside /api are not limited.
	if rec, _ := do(t, r, "GET", "/", ""); rec.Code != 200 {
		t.Fatalf("root = %d", rec.Code)
	}
}

func TestIPLimiter_SweepsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(rate.Limit(1), 1, func() time.Time { return now })

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	now = now.Add(5 * time.Minute)
	l.allow("10.0.0.3")
	if len(l.visitors) != 1 {
		t.Fatalf("visitors = %d", len(l.visitors))
	}
}

func TestCORS(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{CORS: config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		AllowedMethods: []string{"GET", "PUT"},
		AllowedHeaders: []string{"Content-Type"},
	}})
	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := telemetry.NewMetrics("appointments", prometheus.NewRegistry())
	r, _ := newTestRouter(t, RouterOptions{Metrics: m})

	do(t, r, "GET", "/api/appointments/999", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `appointments_http_requests_total{method="GET",path="/api/appointments/:id",status="404"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", rec.Body)
	}
}
