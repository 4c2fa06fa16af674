package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scope"
)

// AppointmentRepository is the persistence gateway for appointments.
// Create performs the atomic slot reservation: the insert either commits
// with the slot held or fails with a conflict.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByCode(ctx context.Context, code string) (*Appointment, error)
	// UpdateStatus sets the status only when the row still carries
	// expectedCurrent, so a losing concurrent writer observes a conflict.
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedCurrent, next string) error
	// SetStatus sets the status unconditionally (completion trigger).
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	// Reschedule moves the appointment to a new slot and resets it to
	// scheduled; the slot uniqueness constraint applies. The update only
	// applies while the appointment is still in expectedCurrent, so a
	// losing concurrent writer observes a conflict.
	Reschedule(ctx context.Context, id uuid.UUID, expectedCurrent string, newDate time.Time, newTime string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Appointment, int, error)
	BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)
}
