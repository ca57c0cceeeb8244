package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status
// ─────────────────────────────────────────────────────────────────────────────

// Status is the lifecycle state of an appointment.
//
//	Scheduled → Confirmed → Completed
//	Scheduled → Cancelled
//	Confirmed → Cancelled
//
// Completed and Cancelled are terminal in the nominal flow. Updates are not
// gated on it: any status may be set from any other.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var statuses = []Status{StatusConfirmed, StatusScheduled, StatusCompleted, StatusCancelled}

// Statuses lists every valid status in display order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("models: unknown status")

// ParseStatus matches s case-insensitively against the enum and returns the
// canonical spelling.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsValid reports whether s is one of the four enum values, spelled exactly.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is Completed or Cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next follows s in the nominal flow.
func (s Status) CanTransitionTo(next Status) bool {
	allowed := map[Status][]Status{
		StatusScheduled: {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	}
	for _, a := range allowed[s] {
		if a == next {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Mode
// ─────────────────────────────────────────────────────────────────────────────

// Mode is how an appointment takes place.
type Mode string

const (
	ModeInPerson Mode = "In-person"
	ModeVirtual  Mode = "Virtual"
)

// ParseMode matches s case-insensitively against the modes.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for _, m := range []Mode{ModeInPerson, ModeVirtual} {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("models: unknown mode %q", s)
}

func (m Mode) IsValid() bool { return m == ModeInPerson || m == ModeVirtual }

// ─────────────────────────────────────────────────────────────────────────────
// Appointment
// ─────────────────────────────────────────────────────────────────────────────

// Appointment represents a row in the "appointments" table.
type Appointment struct {
	ID              int64     `json:"id"`
	PatientName     string    `json:"patient_name"`
	AppointmentDate Date      `json:"appointment_date"`
	AppointmentTime ClockTime `json:"appointment_time"`
	Duration        int       `json:"duration"`
	DoctorName      string    `json:"doctor_name"`
	Status          Status    `json:"status"`
	Mode            Mode      `json:"mode"`
	Reason          *string   `json:"reason"`
	Notes           *string   `json:"notes"`
	Phone           *string   `json:"phone"`
	Email           *string   `json:"email"`
	AbhaID          *string   `json:"abha_id"`
	PatientInitials *string   `json:"patient_initials"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy, so callers cannot reach into a store's state
// through shared pointers.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.Reason = cloneString(a.Reason)
	c.Notes = cloneString(a.Notes)
	c.Phone = cloneString(a.Phone)
	c.Email = cloneString(a.Email)
	c.AbhaID = cloneString(a.AbhaID)
	c.PatientInitials = cloneString(a.PatientInitials)
	return &c
}

// Less orders by (date, time, id), the order every listing uses.
func (a *Appointment) Less(o *Appointment) bool {
	if c := a.AppointmentDate.Compare(o.AppointmentDate); c != 0 {
		return c < 0
	}
	if c := a.AppointmentTime.Compare(o.AppointmentTime); c != 0 {
		return c < 0
	}
	return a.ID < o.ID
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateAppointmentParams
// ─────────────────────────────────────────────────────────────────────────────

// CreateAppointmentParams is the input for creating an appointment. The
// store assigns id and timestamps.
type CreateAppointmentParams struct {
	PatientName     string     `json:"patient_name" validate:"required,max=255"`
	AppointmentDate *Date      `json:"appointment_date" validate:"required"`
	AppointmentTime *ClockTime `json:"appointment_time" validate:"required"`
	Duration        int        `json:"duration" validate:"gt=0"`
	DoctorName      string     `json:"doctor_name" validate:"required,max=255"`
	Status          Status     `json:"status" validate:"appointment_status"`
	Mode            Mode       `json:"mode" validate:"appointment_mode"`
	Reason          *string    `json:"reason"`
	Notes           *string    `json:"notes"`
	Phone           *string    `json:"phone" validate:"omitempty,max=20"`
	Email           *string    `json:"email" validate:"omitempty,email,max=255"`
	AbhaID          *string    `json:"abha_id" validate:"omitempty,max=50"`
	PatientInitials *string    `json:"patient_initials" validate:"omitempty,max=5"`
}

// Normalize trims names, turns blank optional strings into nil and
// canonicalizes the spelling of status and mode. Unknown status or mode
// values are left for Validate to reject.
func (p *CreateAppointmentParams) Normalize() {
	p.PatientName = strings.TrimSpace(p.PatientName)
	p.DoctorName = strings.TrimSpace(p.DoctorName)
	if p.AppointmentDate != nil && p.AppointmentDate.IsZero() {
		p.AppointmentDate = nil
	}
	if st, err := ParseStatus(string(p.Status)); err == nil {
		p.Status = st
	}
	if m, err := ParseMode(string(p.Mode)); err == nil {
		p.Mode = m
	}
	for _, f := range []**string{&p.Reason, &p.Notes, &p.Phone, &p.Email, &p.AbhaID, &p.PatientInitials} {
		if *f != nil && strings.TrimSpace(**f) == "" {
			*f = nil
		}
	}
}

// Validate returns a *ValidationError naming every offending field by its
// JSON name, or nil.
func (p CreateAppointmentParams) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

// ─────────────────────────────────────────────────────────────────────────────
// Filter and aggregates
// ─────────────────────────────────────────────────────────────────────────────

// AppointmentFilter selects appointments. nil fields do not constrain.
type AppointmentFilter struct {
	Date   *Date
	Status *Status
}

// Matches reports whether a satisfies every set predicate.
func (f AppointmentFilter) Matches(a *Appointment) bool {
	if f.Date != nil && a.AppointmentDate.Compare(*f.Date) != 0 {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	return true
}

// Stats are the dashboard counts relative to a reference date.
type Stats struct {
	TodayCount     int64 `json:"today_count"`
	ConfirmedCount int64 `json:"confirmed_count"`
	UpcomingCount  int64 `json:"upcoming_count"`
	VirtualCount   int64 `json:"virtual_count"`
	TotalCount     int64 `json:"total_count"`
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError
// ─────────────────────────────────────────────────────────────────────────────

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// ─────────────────────────────────────────────────────────────────────────────
// validator setup
// ─────────────────────────────────────────────────────────────────────────────

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "appointment_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	mustRegister(v, "appointment_mode", func(fl validator.FieldLevel) bool {
		return Mode(fl.Field().String()).IsValid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}
