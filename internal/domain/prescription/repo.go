package prescription

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scope"
)

// PrescriptionRepository persists prescriptions with their item lines.
type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)
	List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Prescription, int, error)
}
