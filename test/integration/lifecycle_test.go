package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/clinicore/clinicore/internal/domain/prescription"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

func booking(t *testing.T, ctx context.Context, svcs services, date, timeOfDay string) (*scheduling.Appointment, auth.CallerContext) {
	t.Helper()
	patientID, doctorID := seedPatientDoctor(t, ctx)
	a, err := svcs.Scheduling.Book(ctx, admin(), scheduling.BookRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      timeOfDay,
	})
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	return a, auth.CallerContext{Role: auth.RoleDoctor, DoctorID: &a.DoctorID}
}

func TestBookWithoutReasonPersists(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()

	// An omitted reason must not trip the NOT NULL column.
	a, _ := booking(t, ctx, svcs, "2025-02-20", "14:00")

	got, err := svcs.Scheduling.Get(ctx, admin(), a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Reason != nil && *got.Reason != "" {
		t.Errorf("reason = %q, want empty", *got.Reason)
	}
	if got.Status != scheduling.StatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestSlotReservationIsConstraintBacked(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()
	a, _ := booking(t, ctx, svcs, "2025-03-01", "10:00")

	_, err := svcs.Scheduling.Book(ctx, admin(), scheduling.BookRequest{
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      "2025-03-01",
		Time:      "10:00",
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("second booking of the same slot: got %v, want conflict", err)
	}

	// Cancelling frees the slot.
	if _, err := svcs.Scheduling.Cancel(ctx, admin(), a.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if _, err := svcs.Scheduling.Book(ctx, admin(), scheduling.BookRequest{
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      "2025-03-01",
		Time:      "10:00",
	}); err != nil {
		t.Fatalf("rebooking a cancelled slot: %v", err)
	}
}

func TestConcurrentBookingOneWinner(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()
	patientID, doctorID := seedPatientDoctor(t, ctx)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svcs.Scheduling.Book(ctx, admin(), scheduling.BookRequest{
				PatientID: patientID,
				DoctorID:  doctorID,
				Date:      "2025-03-02",
				Time:      "09:30",
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case apperr.IsKind(err, apperr.Conflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("exactly one racer must win the slot, got %d", won)
	}
}

func TestRescheduleIntoHeldSlot(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()
	a, _ := booking(t, ctx, svcs, "2025-03-03", "10:00")

	// Same doctor holds 11:00 too.
	if _, err := svcs.Scheduling.Book(ctx, admin(), scheduling.BookRequest{
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      "2025-03-03",
		Time:      "11:00",
	}); err != nil {
		t.Fatalf("blocker booking: %v", err)
	}

	_, err := svcs.Scheduling.Reschedule(ctx, admin(), scheduling.RescheduleRequest{
		AppointmentID: a.ID,
		Date:          "2025-03-03",
		Time:          "11:00",
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("reschedule into a held slot: got %v, want conflict", err)
	}

	got, err := svcs.Scheduling.Get(ctx, admin(), a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Time != "10:00" || got.Status != scheduling.StatusScheduled {
		t.Errorf("failed reschedule must leave the appointment unchanged: %s %s", got.Time, got.Status)
	}
}

func TestPrescriptionCompletesAppointment(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()
	a, doctor := booking(t, ctx, svcs, "2025-03-04", "10:00")

	rx, err := svcs.Prescription.Create(ctx, doctor, prescription.CreateRequest{
		AppointmentID: a.ID,
		Diagnosis:     "viral fever",
		Items: []prescription.ItemRequest{
			{Kind: prescription.ItemMedicine, Name: "paracetamol", Dosage: "500mg", Frequency: "tid", DurationDays: 3},
		},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if rx.PatientID != a.PatientID || rx.DoctorID != a.DoctorID {
		t.Errorf("prescription not bound to the appointment parties")
	}

	got, err := svcs.Scheduling.Get(ctx, admin(), a.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != scheduling.StatusCompleted {
		t.Errorf("appointment status = %s, want completed", got.Status)
	}
}

func TestPrescriptionRollsBackWhenCompletionFails(t *testing.T) {
	ctx := context.Background()
	svcs := newServices()
	a, doctor := booking(t, ctx, svcs, "2025-03-05", "10:00")

	if _, err := svcs.Scheduling.Cancel(ctx, admin(), a.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	_, err := svcs.Prescription.Create(ctx, doctor, prescription.CreateRequest{
		AppointmentID: a.ID,
		Diagnosis:     "viral fever",
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("prescribing on a cancelled appointment: got %v, want conflict", err)
	}

	var count int
	if err := globalDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE appointment_id = $1`, a.ID).Scan(&count); err != nil {
		t.Fatalf("count prescriptions: %v", err)
	}
	if count != 0 {
		t.Errorf("prescription row survived a failed completion; want rollback")
	}
}
