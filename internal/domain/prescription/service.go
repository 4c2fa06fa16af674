package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Appointments is the slice of the scheduling service this package needs:
// an authorized read and the completion hook fired when a prescription is
// recorded.
type Appointments interface {
	Get(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*scheduling.Appointment, error)
	CompleteFromPrescription(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	prescriptions PrescriptionRepository
	appointments  Appointments
	resolver      *scope.Resolver
	tx            db.Tx
}

func NewService(prescriptions PrescriptionRepository, appointments Appointments, resolver *scope.Resolver, tx db.Tx) *Service {
	return &Service{prescriptions: prescriptions, appointments: appointments, resolver: resolver, tx: tx}
}

type ItemRequest struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	DurationDays int    `json:"duration_days"`
	Instructions string `json:"instructions"`
}

type CreateRequest struct {
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Diagnosis     string        `json:"diagnosis"`
	Notes         string        `json:"notes"`
	FollowUpDate  *time.Time    `json:"follow_up_date"`
	Items         []ItemRequest `json:"items"`
}

// Create records a prescription against an appointment and completes the
// appointment in the same transaction. Only the appointment's own doctor may
// prescribe; if completing the appointment fails, the prescription rolls
// back with it.
func (s *Service) Create(ctx context.Context, caller auth.CallerContext, req CreateRequest) (*Prescription, error) {
	if caller.Role != auth.RoleDoctor || caller.DoctorID == nil {
		return nil, apperr.Authorizationf("only doctors record prescriptions")
	}
	if req.AppointmentID == uuid.Nil {
		return nil, apperr.Validationf("appointment_id is required")
	}
	if req.Diagnosis == "" {
		return nil, apperr.Validationf("diagnosis is required")
	}
	items := make([]Item, 0, len(req.Items))
	for _, line := range req.Items {
		kind := line.Kind
		if kind == "" {
			kind = ItemMedicine
		}
		if !validItemKinds[kind] {
			return nil, apperr.Validationf("invalid item kind %q", line.Kind)
		}
		if line.Name == "" {
			return nil, apperr.Validationf("name is required on every item")
		}
		items = append(items, Item{
			Kind:         kind,
			Name:         line.Name,
			Dosage:       line.Dosage,
			Frequency:    line.Frequency,
			DurationDays: line.DurationDays,
			Instructions: line.Instructions,
		})
	}

	// The scoped read rejects a prescriber who does not own the appointment.
	appt, err := s.appointments.Get(ctx, caller, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	rx := &Prescription{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
		FollowUpDate:  req.FollowUpDate,
		Items:         items,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.Create(ctx, rx); err != nil {
			return err
		}
		return s.appointments.CompleteFromPrescription(ctx, appt.ID)
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) Get(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Prescription, error) {
	rx, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.authorizeRead(ctx, caller, rx)
}

func (s *Service) GetByAppointment(ctx context.Context, caller auth.CallerContext, appointmentID uuid.UUID) (*Prescription, error) {
	rx, err := s.prescriptions.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.authorizeRead(ctx, caller, rx)
}

func (s *Service) List(ctx context.Context, caller auth.CallerContext, limit, offset int) ([]*Prescription, int, error) {
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	return s.prescriptions.List(ctx, filter, limit, offset)
}

func (s *Service) authorizeRead(ctx context.Context, caller auth.CallerContext, rx *Prescription) (*Prescription, error) {
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if filter.All || filter.AllowsPatient(rx.PatientID) || filter.AllowsDoctor(rx.DoctorID) {
		return rx, nil
	}
	return nil, apperr.Authorizationf("prescription %s is outside the caller's scope", rx.ID)
}
