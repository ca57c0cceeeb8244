package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Skryldev/appointments/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	calls  int
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testAppointment() *models.Appointment {
	return &models.Appointment{
		ID:              7,
		PatientName:     "Priya Singh",
		AppointmentDate: models.MustParseDate("2025-12-15"),
		AppointmentTime: models.MustParseClockTime("11:00"),
		Duration:        30,
		DoctorName:      "Dr. Anita Desai",
		Status:          models.StatusConfirmed,
		Mode:            models.ModeVirtual,
		CreatedAt:       time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 12, 2, 9, 0, 0, 0, time.UTC),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fanout
// ─────────────────────────────────────────────────────────────────────────────

func TestFanout_CallsEveryHook(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	var seen []string

	f := NewFanout(
		HookFunc(func(context.Context, *models.Appointment) error { seen = append(seen, "a"); return errA }),
		nil,
		HookFunc(func(_ context.Context, a *models.Appointment) error {
			seen = append(seen, "b")
			a.Status = models.StatusCancelled
			return nil
		}),
		HookFunc(func(_ context.Context, a *models.Appointment) error {
			seen = append(seen, "c:"+string(a.Status))
			return errC
		}),
	)
	if f.Len() != 3 {
		t.Fatalf("Len = %d", f.Len())
	}

	appt := testAppointment()
	err := f.AppointmentUpdated(context.Background(), appt)
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if len(seen) != 3 || seen[2] != "c:Confirmed" {
		t.Fatalf("seen = %v", seen)
	}
	if appt.Status != models.StatusConfirmed {
		t.Fatal("hooks must not mutate the caller's appointment")
	}
}

func TestLogHook(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	if err := LogHook(zap.New(core)).AppointmentUpdated(context.Background(), testAppointment()); err != nil {
		t.Fatalf("log hook: %v", err)
	}
	entries := logs.FilterMessage("appointment status changed").All()
	if len(entries) != 1 || entries[0].ContextMap()["status"] != "Confirmed" {
		t.Fatalf("entries = %+v", entries)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// KafkaPublisher
// ─────────────────────────────────────────────────────────────────────────────

func TestKafkaPublisher_WritesEvent(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	p := NewKafkaPublisher(w, withClock(func() time.Time { return at }))

	if err := p.AppointmentUpdated(context.Background(), testAppointment()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "7" {
		t.Fatalf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != EventStatusUpdated {
		t.Fatalf("headers = %+v", msg.Headers)
	}

	var ev struct {
		Type        string          `json:"type"`
		OccurredAt  time.Time       `json:"occurred_at"`
		Appointment json.RawMessage `json:"appointment"`
	}
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventStatusUpdated || !ev.OccurredAt.Equal(at) {
		t.Fatalf("event = %+v", ev)
	}
	var appt map[string]any
	_ = json.Unmarshal(ev.Appointment, &appt)
	if appt["status"] != "Confirmed" || appt["appointment_date"] != "2025-12-15" {
		t.Fatalf("appointment payload = %v", appt)
	}
}

func TestKafkaPublisher_BreakerOpens(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := NewKafkaPublisher(w, WithBreakerSettings(gobreaker.Settings{
		Name:        "test",
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.AppointmentUpdated(ctx, testAppointment()); err == nil {
			t.Fatal("expected write error")
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v", p.State())
	}

	err := p.AppointmentUpdated(ctx, testAppointment())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if w.calls != 2 {
		t.Fatalf("open breaker still reached the writer: %d calls", w.calls)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	if err := NewKafkaPublisher(w).Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}
