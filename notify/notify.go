// Package notify delivers committed appointment changes to side channels.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/models"
)

// Hook receives an appointment after its status change committed.
type Hook interface {
	AppointmentUpdated(ctx context.Context, appt *models.Appointment) error
}

type HookFunc func(ctx context.Context, appt *models.Appointment) error

func (f HookFunc) AppointmentUpdated(ctx context.Context, appt *models.Appointment) error {
	return f(ctx, appt)
}

// Fanout calls every hook in registration order. A failing hook does not
// stop the others; all errors are joined.
type Fanout struct {
	hooks []Hook
}

func NewFanout(hooks ...Hook) *Fanout {
	hs := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &Fanout{hooks: hs}
}

func (f *Fanout) AppointmentUpdated(ctx context.Context, appt *models.Appointment) error {
	var errs []error
	for _, h := range f.hooks {
		// Each hook gets its own copy so none can affect another.
		if err := h.AppointmentUpdated(ctx, appt.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of registered hooks.
func (f *Fanout) Len() int { return len(f.hooks) }

// LogHook writes one info line per status change.
func LogHook(log *zap.Logger) Hook {
	return HookFunc(func(_ context.Context, appt *models.Appointment) error {
		log.Info("appointment status changed",
			zap.Int64("id", appt.ID),
			zap.String("status", string(appt.Status)),
			zap.Time("updated_at", appt.UpdatedAt),
		)
		return nil
	})
}

var _ engine.Notifier = (*Fanout)(nil)
