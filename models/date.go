package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04:05"
	clockLayoutHHMM = "15:04"
)

// ─────────────────────────────────────────────────────────────────────────────
// Date
// ─────────────────────────────────────────────────────────────────────────────

// Date is a calendar day with no time-of-day or zone. It is stored and
// serialized as "YYYY-MM-DD". The zero value is "no date".
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate normalizes out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// ParseDate parses an ISO calendar date ("2025-12-15").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("models: invalid date %q, want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals; it panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.year == 0 && d.month == 0 && d.day == 0 }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Scan accepts what the supported drivers return for a DATE column:
// time.Time (pq, pgx, mysql with parseTime) or text (sqlite, mysql).
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	}
	return fmt.Errorf("models: cannot scan %T into Date", src)
}

func (d *Date) scanText(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as text, which every supported database casts to
// its DATE type.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("models: date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ClockTime
// ─────────────────────────────────────────────────────────────────────────────

// ClockTime is a wall-clock time of day without a date or zone, with
// second precision. Serialized as "HH:MM:SS".
type ClockTime struct {
	sec int // seconds since midnight
}

func NewClockTime(hour, minute, second int) (ClockTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return ClockTime{}, fmt.Errorf("models: invalid time %02d:%02d:%02d", hour, minute, second)
	}
	return ClockTime{sec: hour*3600 + minute*60 + second}, nil
}

// ParseClockTime accepts "HH:MM" and "HH:MM:SS". Fractional seconds, as
// some drivers render them, are truncated.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	layout := clockLayout
	if len(s) == len(clockLayoutHHMM) {
		layout = clockLayoutHHMM
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("models: invalid time %q, want HH:MM or HH:MM:SS", s)
	}
	return ClockTime{sec: t.Hour()*3600 + t.Minute()*60 + t.Second()}, nil
}

func MustParseClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return c.sec / 3600 }
func (c ClockTime) Minute() int { return c.sec % 3600 / 60 }
func (c ClockTime) Second() int { return c.sec % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

func (c ClockTime) Compare(o ClockTime) int { return cmpInt(c.sec, o.sec) }

// Scan accepts text (pq, pgx, mysql, sqlite) and time.Time for drivers that
// hand TIME columns back as a timestamp on the zero date.
func (c *ClockTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = ClockTime{}
		return nil
	case time.Time:
		*c = ClockTime{sec: v.Hour()*3600 + v.Minute()*60 + v.Second()}
		return nil
	case string:
		return c.scanText(v)
	case []byte:
		return c.scanText(string(v))
	}
	return fmt.Errorf("models: cannot scan %T into ClockTime", src)
}

func (c *ClockTime) scanText(s string) error {
	// Some drivers render TIME as a full timestamp; keep the clock part.
	if i := strings.LastIndexAny(s, "T "); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, "Z")
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) Value() (driver.Value, error) { return c.String(), nil }

func (c ClockTime) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("models: time must be a string: %w", err)
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
