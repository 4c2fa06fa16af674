package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scope"
)

// InvoiceRepository persists invoices and their ledgers. Create writes the
// invoice together with its item and payment rows; callers that need the
// writes to be atomic wrap the call in a transaction.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	AddPayment(ctx context.Context, p *InvoicePayment) error
	// LockForPayment takes a row lock on the invoice so concurrent ledger
	// writers for the same invoice serialize.
	LockForPayment(ctx context.Context, id uuid.UUID) error
	// PaymentsTotal sums the persisted ledger for the invoice.
	PaymentsTotal(ctx context.Context, id uuid.UUID) (float64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Invoice, int, error)
}
