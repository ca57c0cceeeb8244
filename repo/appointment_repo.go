package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// AppointmentRepository
// ─────────────────────────────────────────────────────────────────────────────

// AppointmentRepository is the record store contract. Every mutation is
// committed before the method returns. Missing records are reported as
// db.ErrNotFound regardless of backend.
type AppointmentRepository interface {
	// Insert validates params, assigns id and timestamps and returns the
	// stored record. Invalid input yields *models.ValidationError.
	Insert(ctx context.Context, params models.CreateAppointmentParams) (*models.Appointment, error)
	// Find returns the matching records ordered by date, time and id. No
	// match is an empty slice, not an error.
	Find(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error)
	FindByID(ctx context.Context, id int64) (*models.Appointment, error)
	// UpdateStatus sets status and updated_at and returns the record as
	// committed.
	UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Appointment, error)
	// Delete removes the record and returns its id.
	Delete(ctx context.Context, id int64) (int64, error)
	// Aggregate computes the dashboard counts relative to reference from a
	// single snapshot.
	Aggregate(ctx context.Context, reference models.Date) (*models.Stats, error)
	Count(ctx context.Context) (int64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// appointmentRepo
// ─────────────────────────────────────────────────────────────────────────────

type appointmentRepo struct {
	q       db.Querier
	dialect Dialect
	now     func() time.Time
}

// NewAppointmentRepo returns the SQL-backed store. q may be a *db.DB or a
// *db.Tx; d must match the driver behind q.
func NewAppointmentRepo(q db.Querier, d Dialect) AppointmentRepository {
	return &appointmentRepo{q: q, dialect: d, now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

func (r *appointmentRepo) with(q db.Querier) *appointmentRepo {
	c := *r
	c.q = q
	return &c
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL
// ─────────────────────────────────────────────────────────────────────────────

const appointmentColumns = `id, patient_name, appointment_date, appointment_time, duration,
	doctor_name, status, mode, reason, notes, phone, email, abha_id,
	patient_initials, created_at, updated_at`

const (
	sqlInsertAppointment = `
		INSERT INTO appointments (patient_name, appointment_date, appointment_time, duration,
			doctor_name, status, mode, reason, notes, phone, email, abha_id,
			patient_initials, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	sqlSelectAppointments = `
		SELECT ` + appointmentColumns + `
		FROM   appointments`

	sqlOrderAppointments = `
		ORDER  BY appointment_date ASC, appointment_time ASC, id ASC`

	sqlGetAppointmentByID = sqlSelectAppointments + `
		WHERE  id = $1`

	sqlUpdateAppointmentStatus = `
		UPDATE appointments
		SET    status = $1, updated_at = $2
		WHERE  id = $3`

	sqlDeleteAppointment = `
		DELETE FROM appointments WHERE id = $1`

	sqlCountAppointments = `
		SELECT COUNT(*) FROM appointments`

	// One statement, so all five counts come from the same snapshot.
	sqlAggregateAppointments = `
		SELECT COALESCE(SUM(CASE WHEN appointment_date = $1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN appointment_date >= $3 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mode = $4 THEN 1 ELSE 0 END), 0),
		       COUNT(*)
		FROM   appointments`
)

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

func (r *appointmentRepo) Insert(ctx context.Context, params models.CreateAppointmentParams) (*models.Appointment, error) {
	args, err := r.insertArgs(&params)
	if err != nil {
		return nil, err
	}
	if r.dialect.SupportsReturning() {
		return scanAppointment(r.q.QueryRow(ctx, r.insertQuery(), args...))
	}
	res, err := r.q.Exec(ctx, r.insertQuery(), args...)
	if err != nil {
		return nil, fmt.Errorf("repo/appointment: insert: %w", err)
	}
	return r.readInserted(ctx, res)
}

// InsertMany inserts all params in one transaction through a single
// prepared statement; either every record is stored or none is. All
// params are validated before the transaction starts.
func (r *appointmentRepo) InsertMany(ctx context.Context, params []models.CreateAppointmentParams) ([]*models.Appointment, error) {
	argSets := make([][]any, 0, len(params))
	for i := range params {
		p := params[i]
		args, err := r.insertArgs(&p)
		if err != nil {
			return nil, err
		}
		argSets = append(argSets, args)
	}

	out := make([]*models.Appointment, 0, len(params))
	err := r.q.WithinTx(ctx, func(q db.Querier) error {
		stmt, err := q.Prepare(ctx, r.insertQuery())
		if err != nil {
			return fmt.Errorf("repo/appointment: prepare insert: %w", err)
		}
		defer stmt.Close()

		txRepo := r.with(q)
		for _, args := range argSets {
			var a *models.Appointment
			if r.dialect.SupportsReturning() {
				a, err = scanAppointment(stmt.QueryRow(ctx, args...))
			} else {
				var res sql.Result
				if res, err = stmt.Exec(ctx, args...); err == nil {
					a, err = txRepo.readInserted(ctx, res)
				}
			}
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *appointmentRepo) insertQuery() string {
	if r.dialect.SupportsReturning() {
		return r.dialect.Rebind(sqlInsertAppointment + ` RETURNING ` + appointmentColumns)
	}
	return r.dialect.Rebind(sqlInsertAppointment)
}

// insertArgs normalizes and validates params and returns the bound values
// for sqlInsertAppointment.
func (r *appointmentRepo) insertArgs(params *models.CreateAppointmentParams) ([]any, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	now := r.now()
	return []any{
		params.PatientName, *params.AppointmentDate, *params.AppointmentTime, params.Duration,
		params.DoctorName, string(params.Status), string(params.Mode),
		NullString(params.Reason), NullString(params.Notes), NullString(params.Phone),
		NullString(params.Email), NullString(params.AbhaID), NullString(params.PatientInitials),
		now, now,
	}, nil
}

// readInserted loads the row just written on dialects without RETURNING.
func (r *appointmentRepo) readInserted(ctx context.Context, res sql.Result) (*models.Appointment, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repo/appointment: last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Find / FindByID
// ─────────────────────────────────────────────────────────────────────────────

func (r *appointmentRepo) Find(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	where := buildFilter(r.dialect, filter)
	query := sqlSelectAppointments + where.SQL() + sqlOrderAppointments

	rows, err := r.q.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, fmt.Errorf("repo/appointment: find: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo/appointment: find: %w", err)
	}
	return out, nil
}

func (r *appointmentRepo) FindByID(ctx context.Context, id int64) (*models.Appointment, error) {
	return scanAppointment(r.q.QueryRow(ctx, r.dialect.Rebind(sqlGetAppointmentByID), id))
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

// UpdateStatus writes and reads back inside one transaction so the returned
// record is exactly the committed row.
func (r *appointmentRepo) UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Appointment, error) {
	var updated *models.Appointment
	err := r.q.WithinTx(ctx, func(q db.Querier) error {
		res, err := q.Exec(ctx, r.dialect.Rebind(sqlUpdateAppointmentStatus), string(status), r.now(), id)
		if err != nil {
			return fmt.Errorf("repo/appointment: update status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("repo/appointment: rows affected: %w", err)
		}
		if n == 0 {
			return db.ErrNotFound
		}
		updated, err = scanAppointment(q.QueryRow(ctx, r.dialect.Rebind(sqlGetAppointmentByID), id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

func (r *appointmentRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.q.Exec(ctx, r.dialect.Rebind(sqlDeleteAppointment), id)
	if err != nil {
		return 0, fmt.Errorf("repo/appointment: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo/appointment: rows affected: %w", err)
	}
	if n == 0 {
		return 0, db.ErrNotFound
	}
	return id, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregate / Count
// ─────────────────────────────────────────────────────────────────────────────

func (r *appointmentRepo) Aggregate(ctx context.Context, reference models.Date) (*models.Stats, error) {
	s := &models.Stats{}
	err := r.q.QueryRow(ctx, r.dialect.Rebind(sqlAggregateAppointments),
		reference, string(models.StatusConfirmed), reference, string(models.ModeVirtual),
	).Scan(&s.TodayCount, &s.ConfirmedCount, &s.UpcomingCount, &s.VirtualCount, &s.TotalCount)
	if err != nil {
		return nil, fmt.Errorf("repo/appointment: aggregate: %w", err)
	}
	return s, nil
}

func (r *appointmentRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountAppointments).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/appointment: count: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanAppointment
// ─────────────────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAppointment maps one row in appointmentColumns order.
func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                                           models.Appointment
		status, mode                                string
		reason, notes, phone, email, abha, initials sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.PatientName, &a.AppointmentDate, &a.AppointmentTime, &a.Duration,
		&a.DoctorName, &status, &mode, &reason, &notes, &phone, &email, &abha,
		&initials, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repo/appointment: %w", err)
	}
	a.Status = models.Status(status)
	a.Mode = models.Mode(mode)
	a.Reason = fromNullString(reason)
	a.Notes = fromNullString(notes)
	a.Phone = fromNullString(phone)
	a.Email = fromNullString(email)
	a.AbhaID = fromNullString(abha)
	a.PatientInitials = fromNullString(initials)
	return &a, nil
}

var _ AppointmentRepository = (*appointmentRepo)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Null helpers
// ─────────────────────────────────────────────────────────────────────────────

// NullString converts *string to sql.NullString for optional columns.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
