package engine

import (
	"time"

	"github.com/Skryldev/appointments/models"
)

// Clock supplies the reference date for dashboard statistics.
type Clock interface {
	Today() models.Date
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() models.Date

func (f ClockFunc) Today() models.Date { return f() }

// SystemClock reads the wall clock in loc. A nil loc means time.Local.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return ClockFunc(func() models.Date { return models.DateOf(time.Now().In(loc)) })
}

// FixedClock always reports d.
func FixedClock(d models.Date) Clock {
	return ClockFunc(func() models.Date { return d })
}
