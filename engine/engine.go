// Package engine turns list, create, status and statistics requests into
// record store calls. It validates status values against the enum before
// any store access, classifies store failures and fires the update hook
// once a status change has committed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/models"
	"github.com/Skryldev/appointments/repo"
)

// Notifier is told about every committed status change.
type Notifier interface {
	AppointmentUpdated(ctx context.Context, appt *models.Appointment) error
}

// Recorder receives business counters.
type Recorder interface {
	AppointmentCreated()
	AppointmentDeleted()
	StatusChanged(status models.Status)
}

type noopRecorder struct{}

func (noopRecorder) AppointmentCreated()         {}
func (noopRecorder) AppointmentDeleted()         {}
func (noopRecorder) StatusChanged(models.Status) {}

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service is the appointment query and mutation engine over one store.
type Service struct {
	store    repo.AppointmentRepository
	clock    Clock
	notifier Notifier
	metrics  Recorder
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock GetStats uses for "today".
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithNotifier sets the hook told about committed status changes.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithMetrics sets the business-event recorder.
func WithMetrics(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// New returns a Service over store. Defaults: system clock in local time, no
// notifier, nop logger and recorder.
func New(store repo.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   SystemClock(nil),
		metrics: noopRecorder{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListQuery carries the optional list filters as they arrive from a
// caller. Status is free text; a nil pointer or an empty string means the
// filter is absent.
type ListQuery struct {
	Date   *models.Date
	Status *string
}

// AppointmentList is a ListAppointments result.
type AppointmentList struct {
	Appointments []*models.Appointment `json:"appointments"`
	Count        int                   `json:"count"`
}

// ListAppointments returns matching records ordered by date, time and id.
// A status that names no enum member cannot match a stored record, so the
// result is empty and the store is not consulted.
func (s *Service) ListAppointments(ctx context.Context, q ListQuery) (*AppointmentList, error) {
	var filter models.AppointmentFilter
	if q.Date != nil && !q.Date.IsZero() {
		d := *q.Date
		filter.Date = &d
	}
	if q.Status != nil && strings.TrimSpace(*q.Status) != "" {
		st, err := models.ParseStatus(*q.Status)
		if err != nil {
			s.log.Debug("status filter matches no enum value", zap.String("status", *q.Status))
			return &AppointmentList{Appointments: []*models.Appointment{}}, nil
		}
		filter.Status = &st
	}

	appts, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, s.storeErr("list appointments", 0, err)
	}
	return &AppointmentList{Appointments: appts, Count: len(appts)}, nil
}

// GetAppointment returns the record with id, or ErrNotFound.
func (s *Service) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("get appointment", id, err)
	}
	return a, nil
}

// CreateAppointment validates params and stores a new record. Invalid
// params yield *models.ValidationError.
func (s *Service) CreateAppointment(ctx context.Context, params models.CreateAppointmentParams) (*models.Appointment, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	a, err := s.store.Insert(ctx, params)
	if err != nil {
		return nil, s.storeErr("create appointment", 0, err)
	}
	s.metrics.AppointmentCreated()
	s.log.Info("appointment created",
		zap.Int64("id", a.ID),
		zap.String("date", a.AppointmentDate.String()),
		zap.String("status", string(a.Status)),
	)
	return a, nil
}

// SetStatus applies any enum status regardless of the current one. The
// notifier runs only after the store has committed the change; its errors
// are logged and never returned.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	// Transitions take the exact enum spelling; only list filters fold case.
	st := models.Status(status)
	if !st.IsValid() {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidStatus, status, validStatuses())
	}

	a, err := s.store.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, s.storeErr("set status", id, err)
	}
	s.metrics.StatusChanged(a.Status)
	s.log.Info("appointment status updated", zap.Int64("id", a.ID), zap.String("status", string(a.Status)))

	if s.notifier != nil {
		if nerr := s.notifier.AppointmentUpdated(ctx, a); nerr != nil {
			s.log.Warn("appointment update notification failed", zap.Int64("id", a.ID), zap.Error(nerr))
		}
	}
	return a, nil
}

// DeleteAppointment removes the record with id and returns the id.
func (s *Service) DeleteAppointment(ctx context.Context, id int64) (int64, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return 0, s.storeErr("delete appointment", id, err)
	}
	s.metrics.AppointmentDeleted()
	s.log.Info("appointment deleted", zap.Int64("id", deleted))
	return deleted, nil
}

// GetStats computes dashboard counts relative to the clock's today.
func (s *Service) GetStats(ctx context.Context) (*models.Stats, error) {
	return s.GetStatsFor(ctx, s.clock.Today())
}

// GetStatsFor computes stats with reference as "today".
func (s *Service) GetStatsFor(ctx context.Context, reference models.Date) (*models.Stats, error) {
	st, err := s.store.Aggregate(ctx, reference)
	if err != nil {
		return nil, s.storeErr("get stats", 0, err)
	}
	return st, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// storeErr classifies a store failure. Validation errors pass through
// untouched; not-found becomes ErrNotFound; everything else is a
// StoreError.
func (s *Service) storeErr(op string, id int64, err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case db.IsNotFound(err):
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	s.log.Error("record store failure", zap.String("op", op), zap.Int64("id", id), zap.Error(err))
	return &StoreError{Op: op, Err: err}
}

func validStatuses() string {
	names := make([]string, 0, 4)
	for _, st := range models.Statuses() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}
