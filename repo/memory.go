package repo

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/models"
)

// memoryAppointmentRepo keeps appointments in a map guarded by an RWMutex.
// Records are cloned on the way in and out, so callers never share state
// with the store.
type memoryAppointmentRepo struct {
	mu     sync.RWMutex
	rows   map[int64]*models.Appointment
	nextID int64
	now    func() time.Time
}

// NewMemoryAppointmentRepo returns an empty in-process store. Ids start at
// 1 and are never reused, even after deletes.
func NewMemoryAppointmentRepo() AppointmentRepository {
	return newMemoryAppointmentRepo(utcNow)
}

func newMemoryAppointmentRepo(now func() time.Time) *memoryAppointmentRepo {
	return &memoryAppointmentRepo{rows: make(map[int64]*models.Appointment), now: now}
}

func (r *memoryAppointmentRepo) Insert(ctx context.Context, params models.CreateAppointmentParams) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	a, err := newAppointment(params)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt
	r.rows[a.ID] = a
	return a.Clone(), nil
}

// InsertMany validates every params value before storing any of them.
func (r *memoryAppointmentRepo) InsertMany(ctx context.Context, params []models.CreateAppointmentParams) ([]*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	pending := make([]*models.Appointment, 0, len(params))
	for _, p := range params {
		a, err := newAppointment(p)
		if err != nil {
			return nil, err
		}
		pending = append(pending, a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]*models.Appointment, 0, len(pending))
	for _, a := range pending {
		r.nextID++
		a.ID = r.nextID
		a.CreatedAt, a.UpdatedAt = now, now
		r.rows[a.ID] = a
		out = append(out, a.Clone())
	}
	return out, nil
}

func (r *memoryAppointmentRepo) Find(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	r.mu.RLock()
	out := make([]*models.Appointment, 0, len(r.rows))
	for _, a := range r.rows {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Appointment) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *memoryAppointmentRepo) FindByID(ctx context.Context, id int64) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return a.Clone(), nil
}

// UpdateStatus always moves updated_at forward, even when the clock has
// not advanced since the previous write.
func (r *memoryAppointmentRepo) UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	if !status.IsValid() {
		return nil, &db.DBError{Sentinel: db.ErrCheckViolation, Cause: models.ErrUnknownStatus, Message: string(status)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	now := r.now()
	if !now.After(a.UpdatedAt) {
		now = a.UpdatedAt.Add(time.Microsecond)
	}
	a.Status = status
	a.UpdatedAt = now
	return a.Clone(), nil
}

func (r *memoryAppointmentRepo) Delete(ctx context.Context, id int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return 0, db.ErrNotFound
	}
	delete(r.rows, id)
	return id, nil
}

func (r *memoryAppointmentRepo) Aggregate(ctx context.Context, reference models.Date) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &models.Stats{TotalCount: int64(len(r.rows))}
	for _, a := range r.rows {
		c := a.AppointmentDate.Compare(reference)
		if c == 0 {
			s.TodayCount++
		}
		if c >= 0 {
			s.UpcomingCount++
		}
		if a.Status == models.StatusConfirmed {
			s.ConfirmedCount++
		}
		if a.Mode == models.ModeVirtual {
			s.VirtualCount++
		}
	}
	return s, nil
}

func (r *memoryAppointmentRepo) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &db.DBError{Sentinel: db.ErrTimeout, Cause: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.rows)), nil
}

// newAppointment validates params and builds the record without store
// assigned fields.
func newAppointment(params models.CreateAppointmentParams) (*models.Appointment, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &models.Appointment{
		PatientName:     params.PatientName,
		AppointmentDate: *params.AppointmentDate,
		AppointmentTime: *params.AppointmentTime,
		Duration:        params.Duration,
		DoctorName:      params.DoctorName,
		Status:          params.Status,
		Mode:            params.Mode,
		Reason:          cloneStr(params.Reason),
		Notes:           cloneStr(params.Notes),
		Phone:           cloneStr(params.Phone),
		Email:           cloneStr(params.Email),
		AbhaID:          cloneStr(params.AbhaID),
		PatientInitials: cloneStr(params.PatientInitials),
	}, nil
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ AppointmentRepository = (*memoryAppointmentRepo)(nil)
