package repo

import (
	"context"
	"fmt"

	"github.com/Skryldev/appointments/models"
)

type sampleRow struct {
	patient, date, time string
	duration            int
	doctor              string
	status              models.Status
	mode                models.Mode
	reason, notes       string
	phone, email, abha  string
	initials            string
}

var sampleRows = []sampleRow{
	{"Rahul Sharma", "2025-12-15", "09:00", 60, "Dr. Rajesh Kumar", models.StatusConfirmed, models.ModeInPerson, "General Checkup", "Regular health screening", "+91 98765 43210", "rahul.sharma@email.com", "12-3456-7890-1234", "RS"},
	{"Priya Singh", "2025-12-15", "11:00", 30, "Dr. Anita Desai", models.StatusScheduled, models.ModeVirtual, "Follow-up Consultation", "Review test results", "+91 98765 43211", "priya.singh@email.com", "", "PS"},
	{"Amit Patel", "2025-12-15", "14:00", 45, "Dr. Vikram Mehta", models.StatusConfirmed, models.ModeInPerson, "Vaccination", "Annual flu shot", "+91 98765 43212", "amit.patel@email.com", "98-7654-3210-9876", "AP"},
	{"Sneha Reddy", "2025-12-16", "10:30", 60, "Dr. Rajesh Kumar", models.StatusScheduled, models.ModeVirtual, "Cardiology Consultation", "Blood pressure follow-up", "+91 98765 43213", "sneha.reddy@email.com", "45-6789-0123-4567", "SR"},
	{"Vikram Joshi", "2025-12-16", "15:00", 30, "Dr. Anita Desai", models.StatusCancelled, models.ModeInPerson, "Dental Checkup", "", "+91 98765 43214", "vikram.joshi@email.com", "", "VJ"},
	{"Anjali Verma", "2025-12-17", "09:30", 45, "Dr. Vikram Mehta", models.StatusScheduled, models.ModeInPerson, "Physical Therapy", "Knee rehabilitation", "+91 98765 43215", "anjali.verma@email.com", "78-9012-3456-7890", "AV"},
	{"Rohan Gupta", "2025-12-14", "11:00", 30, "Dr. Rajesh Kumar", models.StatusCompleted, models.ModeVirtual, "Prescription Renewal", "", "+91 98765 43216", "rohan.gupta@email.com", "", "RG"},
	{"Kavya Nair", "2025-12-14", "14:30", 60, "Dr. Anita Desai", models.StatusCompleted, models.ModeInPerson, "Annual Physical", "Complete health assessment", "+91 98765 43217", "kavya.nair@email.com", "23-4567-8901-2345", "KN"},
	{"Arjun Malhotra", "2025-12-13", "10:00", 45, "Dr. Vikram Mehta", models.StatusCompleted, models.ModeInPerson, "Orthopedic Consultation", "Back pain evaluation", "+91 98765 43218", "arjun.malhotra@email.com", "", "AM"},
	{"Divya Iyer", "2025-12-18", "13:00", 30, "Dr. Rajesh Kumar", models.StatusScheduled, models.ModeVirtual, "Dermatology Consult", "Skin condition review", "+91 98765 43219", "divya.iyer@email.com", "56-7890-1234-5678", "DI"},
	{"Karan Shah", "2025-12-19", "16:00", 60, "Dr. Anita Desai", models.StatusScheduled, models.ModeInPerson, "Mental Health Session", "Stress management", "+91 98765 43220", "karan.shah@email.com", "", "KS"},
	{"Meera Kapoor", "2025-12-20", "11:30", 45, "Dr. Vikram Mehta", models.StatusScheduled, models.ModeVirtual, "Nutrition Counseling", "Diet planning", "+91 98765 43221", "meera.kapoor@email.com", "89-0123-4567-8901", "MK"},
}

// SampleAppointments returns the demo clinic schedule used by the seed
// command. Blank optional fields are left nil.
func SampleAppointments() []models.CreateAppointmentParams {
	out := make([]models.CreateAppointmentParams, 0, len(sampleRows))
	for _, s := range sampleRows {
		d := models.MustParseDate(s.date)
		t := models.MustParseClockTime(s.time)
		p := models.CreateAppointmentParams{
			PatientName:     s.patient,
			AppointmentDate: &d,
			AppointmentTime: &t,
			Duration:        s.duration,
			DoctorName:      s.doctor,
			Status:          s.status,
			Mode:            s.mode,
			Reason:          optional(s.reason),
			Notes:           optional(s.notes),
			Phone:           optional(s.phone),
			Email:           optional(s.email),
			AbhaID:          optional(s.abha),
			PatientInitials: optional(s.initials),
		}
		out = append(out, p)
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// batchInserter is implemented by stores that can insert atomically in bulk.
type batchInserter interface {
	InsertMany(ctx context.Context, params []models.CreateAppointmentParams) ([]*models.Appointment, error)
}

// Seed inserts the sample schedule when store is empty and returns the
// number of records written. A non-empty store is left untouched.
func Seed(ctx context.Context, store AppointmentRepository) (int, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("repo/seed: count: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	samples := SampleAppointments()
	if b, ok := store.(batchInserter); ok {
		inserted, err := b.InsertMany(ctx, samples)
		if err != nil {
			return 0, fmt.Errorf("repo/seed: %w", err)
		}
		return len(inserted), nil
	}
	for i, p := range samples {
		if _, err := store.Insert(ctx, p); err != nil {
			return i, fmt.Errorf("repo/seed: insert %s: %w", p.PatientName, err)
		}
	}
	return len(samples), nil
}
