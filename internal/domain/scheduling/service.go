package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/domain/scope"
)

type Service struct {
	appointments AppointmentRepository
	resolver     *scope.Resolver
}

func NewService(appointments AppointmentRepository, resolver *scope.Resolver) *Service {
	return &Service{appointments: appointments, resolver: resolver}
}

// BookRequest carries the fields of a booking call.
type BookRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Mode            string    `json:"mode"`
	Type            string    `json:"type"`
	Reason          *string   `json:"reason,omitempty"`
	Earnings        float64   `json:"earnings"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Book validates the request, authorizes the caller against the target
// doctor and patient, and reserves the slot. The reservation is a single
// insert; the database's partial unique index makes it atomic.
func (s *Service) Book(ctx context.Context, caller auth.CallerContext, req BookRequest) (*Appointment, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validationf("doctor_id is required")
	}
	if req.Date == "" {
		return nil, apperr.Validationf("date is required")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, apperr.Validationf("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	if req.Time == "" {
		return nil, apperr.Validationf("time is required")
	}
	if err := ParseTimeOfDay(req.Time); err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	if req.Mode == "" {
		req.Mode = ModeInClinic
	}
	if !validModes[req.Mode] {
		return nil, apperr.Validationf("invalid mode: %s", req.Mode)
	}
	if req.Type == "" {
		req.Type = TypeConsultation
	}
	if !validTypes[req.Type] {
		return nil, apperr.Validationf("invalid type: %s", req.Type)
	}

	// A patient books for themselves; staff book for doctors in their scope.
	if caller.Role == auth.RolePatient {
		if caller.PatientID == nil {
			return nil, apperr.Authorizationf("patient caller has no patient_id")
		}
		req.PatientID = *caller.PatientID
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if err := s.authorizeDoctorTarget(ctx, caller, req.DoctorID); err != nil {
		return nil, err
	}

	a := &Appointment{
		Code:            NewAppointmentCode(date, req.Time),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Date:            date,
		Time:            req.Time,
		Mode:            req.Mode,
		Type:            req.Type,
		Status:          StatusScheduled,
		Reason:          req.Reason,
		Earnings:        req.Earnings,
		DurationMinutes: req.DurationMinutes,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Start moves a scheduled appointment to in_progress. Only the owning
// doctor may start it; a losing concurrent start or cancel surfaces as a
// conflict rather than a silent overwrite.
func (s *Service) Start(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scope.AuthorizeDoctor(caller, a.DoctorID); err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusInProgress) {
		return nil, apperr.Conflictf("cannot start appointment in status %s", a.Status)
	}
	if err := s.appointments.UpdateStatus(ctx, id, a.Status, StatusInProgress); err != nil {
		return nil, err
	}
	a.Status = StatusInProgress
	return a, nil
}

// Cancel moves a scheduled appointment to cancelled, freeing its slot.
func (s *Service) Cancel(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, caller, id, StatusCancelled)
}

// UpdateStatus is the generic transition used by clinic and receptionist
// flows. Every edge is checked against the closed transition table; the
// update is guarded on the observed current status.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.CallerContext, id uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, apperr.Validationf("invalid status: %s", status)
	}
	if status == StatusCompleted {
		return nil, apperr.Validationf("completed is set by prescription recording, not directly")
	}
	a, err := s.get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, status) {
		return nil, apperr.Conflictf("illegal transition %s -> %s", a.Status, status)
	}
	if err := s.appointments.UpdateStatus(ctx, id, a.Status, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

// RescheduleRequest carries the fields of a reschedule call.
type RescheduleRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
}

// Reschedule moves a scheduled appointment to a new slot. The new slot is
// re-validated against the uniqueness constraint; on conflict the original
// appointment is unchanged.
func (s *Service) Reschedule(ctx context.Context, caller auth.CallerContext, req RescheduleRequest) (*Appointment, error) {
	if req.AppointmentID == uuid.Nil {
		return nil, apperr.Validationf("appointment_id is required")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, apperr.Validationf("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	if err := ParseTimeOfDay(req.Time); err != nil {
		return nil, apperr.Validationf("%v", err)
	}

	a, err := s.get(ctx, caller, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusScheduled) {
		return nil, apperr.Conflictf("cannot reschedule appointment in status %s", a.Status)
	}
	if err := s.appointments.Reschedule(ctx, req.AppointmentID, a.Status, date, req.Time); err != nil {
		return nil, err
	}
	a.Date = date
	a.Time = req.Time
	a.Status = StatusScheduled
	return a, nil
}

// CompleteFromPrescription is the completion trigger's entry point. It is
// idempotent: a completed appointment stays completed. A cancelled
// appointment cannot be completed; the caller's transaction rolls back.
func (s *Service) CompleteFromPrescription(ctx context.Context, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch a.Status {
	case StatusCompleted:
		return nil
	case StatusCancelled:
		return apperr.Conflictf("appointment %s is cancelled", id)
	}
	return s.appointments.SetStatus(ctx, id, StatusCompleted)
}

// BookedSlots returns the non-cancelled times held for a doctor on a date.
// This is a read for client UIs; the enforcement point is Book.
func (s *Service) BookedSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.Validationf("doctor_id is required")
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, apperr.Validationf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return s.appointments.BookedSlots(ctx, doctorID, d)
}

// Get returns an appointment the caller is scoped to see.
func (s *Service) Get(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Appointment, error) {
	return s.get(ctx, caller, id)
}

func (s *Service) List(ctx context.Context, caller auth.CallerContext, limit, offset int) ([]*Appointment, int, error) {
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	return s.appointments.List(ctx, filter, limit, offset)
}

// Delete hard-deletes an appointment. No history is retained.
func (s *Service) Delete(ctx context.Context, caller auth.CallerContext, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return apperr.Authorizationf("only admin may delete appointments")
	}
	return s.appointments.Delete(ctx, id)
}

// get loads the appointment and verifies the caller's scope covers it.
// A doctor asking for another doctor's appointment is rejected, never
// silently filtered.
func (s *Service) get(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role == auth.RoleDoctor {
		if err := scope.AuthorizeDoctor(caller, a.DoctorID); err != nil {
			return nil, err
		}
		return a, nil
	}
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if filter.All || filter.AllowsPatient(a.PatientID) || filter.AllowsDoctor(a.DoctorID) {
		return a, nil
	}
	return nil, apperr.Authorizationf("appointment %s is outside caller scope", id)
}

func (s *Service) authorizeDoctorTarget(ctx context.Context, caller auth.CallerContext, doctorID uuid.UUID) error {
	switch caller.Role {
	case auth.RoleDoctor:
		return scope.AuthorizeDoctor(caller, doctorID)
	case auth.RoleClinic, auth.RoleReceptionist:
		filter, err := s.resolver.Resolve(ctx, caller)
		if err != nil {
			return err
		}
		if !filter.AllowsDoctor(doctorID) {
			return apperr.Authorizationf("doctor %s is not mapped to caller's clinic", doctorID)
		}
	}
	return nil
}
