package repo

import (
	"testing"

	"github.com/Skryldev/appointments/models"
)

func TestBuildFilter(t *testing.T) {
	d := models.MustParseDate("2025-12-15")
	st := models.StatusConfirmed

	tests := []struct {
		name     string
		dialect  Dialect
		filter   models.AppointmentFilter
		wantSQL  string
		wantArgs int
	}{
		{"empty", Postgres, models.AppointmentFilter{}, "", 0},
		{"date", Postgres, models.AppointmentFilter{Date: &d}, " WHERE appointment_date = $1", 1},
		{"both postgres", Postgres, models.AppointmentFilter{Date: &d, Status: &st}, " WHERE appointment_date = $1 AND status = $2", 2},
		{"both mysql", MySQL, models.AppointmentFilter{Date: &d, Status: &st}, " WHERE appointment_date = ? AND status = ?", 2},
		{"status sqlite", SQLite, models.AppointmentFilter{Status: &st}, " WHERE status = $1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := buildFilter(tt.dialect, tt.filter)
			if got := w.SQL(); got != tt.wantSQL {
				t.Fatalf("SQL() = %q, want %q", got, tt.wantSQL)
			}
			if len(w.Args()) != tt.wantArgs {
				t.Fatalf("args = %v", w.Args())
			}
		})
	}
}

func TestBuildFilter_ArgsCarryValues(t *testing.T) {
	d := models.MustParseDate("2025-12-15")
	st := models.StatusCancelled
	w := buildFilter(Postgres, models.AppointmentFilter{Date: &d, Status: &st})

	if got, ok := w.Args()[0].(models.Date); !ok || got != d {
		t.Fatalf("first arg = %#v", w.Args()[0])
	}
	if w.Args()[1] != "Cancelled" {
		t.Fatalf("second arg = %#v", w.Args()[1])
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3"
	if got := Postgres.Rebind(q); got != q {
		t.Fatalf("postgres rebind changed query: %q", got)
	}
	want := "UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?"
	if got := MySQL.Rebind(q); got != want {
		t.Fatalf("mysql rebind = %q", got)
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]Dialect{
		"postgres": Postgres,
		"pgx":      Postgres,
		"sqlite3":  SQLite,
		"mysql":    MySQL,
	}
	for driver, want := range tests {
		got, err := DialectFor(driver)
		if err != nil || got != want {
			t.Errorf("DialectFor(%q) = %v, %v", driver, got, err)
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if MySQL.SupportsReturning() || !Postgres.SupportsReturning() {
		t.Fatal("unexpected RETURNING support")
	}
}

func TestSampleAppointments_AreValid(t *testing.T) {
	samples := SampleAppointments()
	if len(samples) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(samples))
	}
	for _, p := range samples {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.PatientName, err)
		}
	}
}
