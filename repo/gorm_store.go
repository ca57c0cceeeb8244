package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Row type
// ─────────────────────────────────────────────────────────────────────────────

// gormAppointment is the GORM mapping of the appointments table. It mirrors
// migration 000001 so both backends can share a database.
type gormAppointment struct {
	ID              int64            `gorm:"primaryKey;autoIncrement"`
	PatientName     string           `gorm:"column:patient_name;type:varchar(255);not null"`
	AppointmentDate models.Date      `gorm:"column:appointment_date;type:date;not null;index:idx_appointment_date"`
	AppointmentTime models.ClockTime `gorm:"column:appointment_time;type:time;not null"`
	Duration        int              `gorm:"column:duration;not null;check:chk_appointments_duration,duration > 0"`
	DoctorName      string           `gorm:"column:doctor_name;type:varchar(255);not null"`
	Status          string           `gorm:"column:status;type:varchar(20);not null;index:idx_appointment_status;check:chk_appointments_status,status IN ('Confirmed','Scheduled','Completed','Cancelled')"`
	Mode            string           `gorm:"column:mode;type:varchar(20);not null;check:chk_appointments_mode,mode IN ('In-person','Virtual')"`
	Reason          *string          `gorm:"column:reason;type:text"`
	Notes           *string          `gorm:"column:notes;type:text"`
	Phone           *string          `gorm:"column:phone;type:varchar(20)"`
	Email           *string          `gorm:"column:email;type:varchar(255)"`
	AbhaID          *string          `gorm:"column:abha_id;type:varchar(50)"`
	PatientInitials *string          `gorm:"column:patient_initials;type:varchar(5)"`
	CreatedAt       time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;not null"`
}

func (gormAppointment) TableName() string { return "appointments" }

func (g *gormAppointment) toModel() *models.Appointment {
	return &models.Appointment{
		ID:              g.ID,
		PatientName:     g.PatientName,
		AppointmentDate: g.AppointmentDate,
		AppointmentTime: g.AppointmentTime,
		Duration:        g.Duration,
		DoctorName:      g.DoctorName,
		Status:          models.Status(g.Status),
		Mode:            models.Mode(g.Mode),
		Reason:          g.Reason,
		Notes:           g.Notes,
		Phone:           g.Phone,
		Email:           g.Email,
		AbhaID:          g.AbhaID,
		PatientInitials: g.PatientInitials,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection
// ─────────────────────────────────────────────────────────────────────────────

// GormConfig configures OpenGorm. DriverName uses the same names as the db
// driver registry.
type GormConfig struct {
	DriverName      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Logger receives GORM's own statement log at warn level and above.
	Logger *zap.Logger
}

// OpenGorm opens a GORM handle for the configured driver and verifies the
// connection.
func OpenGorm(cfg GormConfig) (*gorm.DB, error) {
	dialector, err := gormDialector(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zapPrintf{log.Named("gorm").Sugar()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("repo/gorm: open: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("repo/gorm: underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("repo/gorm: ping: %w", err)
	}
	return gdb, nil
}

// gormDialector picks the GORM dialector for driver. MySQL DSNs get the
// same parseTime/clientFoundRows settings as the SQL store, so an update
// that leaves a row unchanged still reports it as matched.
func gormDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres", "pgx":
		return postgres.Open(dsn), nil
	case "mysql":
		normalized, err := db.MySQLDriver{}.NormalizeDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("repo/gorm: normalize DSN: %w", err)
		}
		return mysql.Open(normalized), nil
	case "sqlite3", "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("repo/gorm: unsupported driver %q", driver)
	}
}

// MigrateGorm creates or updates the appointments table and its indexes.
func MigrateGorm(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&gormAppointment{}); err != nil {
		return fmt.Errorf("repo/gorm: auto-migrate: %w", err)
	}
	return nil
}

// zapPrintf adapts a sugared zap logger to GORM's logger.Writer.
type zapPrintf struct{ s *zap.SugaredLogger }

func (z zapPrintf) Printf(format string, args ...any) { z.s.Infof(format, args...) }

// ─────────────────────────────────────────────────────────────────────────────
// gormAppointmentRepo
// ─────────────────────────────────────────────────────────────────────────────

type gormAppointmentRepo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormAppointmentRepo returns the GORM-backed store.
func NewGormAppointmentRepo(gdb *gorm.DB) AppointmentRepository {
	return &gormAppointmentRepo{db: gdb, now: utcNow}
}

func (r *gormAppointmentRepo) Insert(ctx context.Context, params models.CreateAppointmentParams) (*models.Appointment, error) {
	row, err := r.newRow(params)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("repo/gorm: insert: %w", mapGormErr(err))
	}
	return row.toModel(), nil
}

func (r *gormAppointmentRepo) InsertMany(ctx context.Context, params []models.CreateAppointmentParams) ([]*models.Appointment, error) {
	rows := make([]*gormAppointment, 0, len(params))
	for _, p := range params {
		row, err := r.newRow(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("repo/gorm: insert many: %w", mapGormErr(err))
	}
	out := make([]*models.Appointment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *gormAppointmentRepo) newRow(params models.CreateAppointmentParams) (*gormAppointment, error) {
	a, err := newAppointment(params)
	if err != nil {
		return nil, err
	}
	now := r.now()
	return &gormAppointment{
		PatientName:     a.PatientName,
		AppointmentDate: a.AppointmentDate,
		AppointmentTime: a.AppointmentTime,
		Duration:        a.Duration,
		DoctorName:      a.DoctorName,
		Status:          string(a.Status),
		Mode:            string(a.Mode),
		Reason:          a.Reason,
		Notes:           a.Notes,
		Phone:           a.Phone,
		Email:           a.Email,
		AbhaID:          a.AbhaID,
		PatientInitials: a.PatientInitials,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (r *gormAppointmentRepo) Find(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	q := r.db.WithContext(ctx).Model(&gormAppointment{})
	if filter.Date != nil {
		q = q.Where(colAppointmentDate+" = ?", *filter.Date)
	}
	if filter.Status != nil {
		q = q.Where(colStatus+" = ?", string(*filter.Status))
	}

	var rows []gormAppointment
	if err := q.Order("appointment_date ASC, appointment_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("repo/gorm: find: %w", mapGormErr(err))
	}
	out := make([]*models.Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *gormAppointmentRepo) FindByID(ctx context.Context, id int64) (*models.Appointment, error) {
	var row gormAppointment
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("repo/gorm: find by id: %w", mapGormErr(err))
	}
	return row.toModel(), nil
}

func (r *gormAppointmentRepo) UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Appointment, error) {
	var row gormAppointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&gormAppointment{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(status),
			"updated_at": r.now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return db.ErrNotFound
		}
		return tx.First(&row, id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("repo/gorm: update status: %w", mapGormErr(err))
	}
	return row.toModel(), nil
}

func (r *gormAppointmentRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&gormAppointment{}, id)
	if res.Error != nil {
		return 0, fmt.Errorf("repo/gorm: delete: %w", mapGormErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return 0, db.ErrNotFound
	}
	return id, nil
}

func (r *gormAppointmentRepo) Aggregate(ctx context.Context, reference models.Date) (*models.Stats, error) {
	s := &models.Stats{}
	row := r.db.WithContext(ctx).Raw(MySQL.Rebind(sqlAggregateAppointments),
		reference, string(models.StatusConfirmed), reference, string(models.ModeVirtual),
	).Row()
	if err := row.Scan(&s.TodayCount, &s.ConfirmedCount, &s.UpcomingCount, &s.VirtualCount, &s.TotalCount); err != nil {
		return nil, fmt.Errorf("repo/gorm: aggregate: %w", mapGormErr(err))
	}
	return s, nil
}

func (r *gormAppointmentRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&gormAppointment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("repo/gorm: count: %w", mapGormErr(err))
	}
	return n, nil
}

// mapGormErr folds GORM's not-found error into db.ErrNotFound and passes
// driver errors through the db error mapper.
func mapGormErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &db.DBError{Sentinel: db.ErrNotFound, Cause: err}
	}
	return db.DefaultErrorMapper().Map(err)
}

var _ AppointmentRepository = (*gormAppointmentRepo)(nil)
