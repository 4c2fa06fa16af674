package billing

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. pending, partial and paid are derived from the payment
// ledger; cancelled is only ever set explicitly.
const (
	StatusPending   = "pending"
	StatusPartial   = "partial"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Payment modes accepted on the ledger.
const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentUPI    = "upi"
	PaymentOnline = "online"
)

var validPaymentModes = map[string]bool{
	PaymentCash:   true,
	PaymentCard:   true,
	PaymentUPI:    true,
	PaymentOnline: true,
}

// Invoice is the billing record for a patient, optionally tied to an
// appointment and the clinic/doctor that raised it. TotalAmount is fixed at
// creation from the item lines and never changes afterwards.
type Invoice struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	Number        string           `db:"invoice_number" json:"invoice_number"`
	PatientID     uuid.UUID        `db:"patient_id" json:"patient_id"`
	DoctorID      *uuid.UUID       `db:"doctor_id" json:"doctor_id,omitempty"`
	ClinicID      *uuid.UUID       `db:"clinic_id" json:"clinic_id,omitempty"`
	AppointmentID *uuid.UUID       `db:"appointment_id" json:"appointment_id,omitempty"`
	Discount      float64          `db:"discount" json:"discount"`
	TotalAmount   float64          `db:"total_amount" json:"total_amount"`
	Status        string           `db:"status" json:"status"`
	Items         []InvoiceItem    `json:"items"`
	Payments      []InvoicePayment `json:"payments"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// InvoiceItem is one billed service line. Amount = Quantity * Rate, computed
// once when the invoice is created.
type InvoiceItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InvoiceID   uuid.UUID `db:"invoice_id" json:"invoice_id"`
	ServiceName string    `db:"service_name" json:"service_name"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Rate        float64   `db:"rate" json:"rate"`
	Amount      float64   `db:"amount" json:"amount"`
}

// InvoicePayment is one entry in the payment ledger. Payments are append
// only; corrections are new entries, not edits.
type InvoicePayment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	InvoiceID uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Mode      string    `db:"mode" json:"mode"`
	Amount    float64   `db:"amount" json:"amount"`
	PaidAt    time.Time `db:"paid_at" json:"paid_at"`
}

// PaidTotal sums the payment ledger.
func (i *Invoice) PaidTotal() float64 {
	var sum float64
	for _, p := range i.Payments {
		sum += p.Amount
	}
	return sum
}

// AmountDue is what remains payable after the discount.
func (i *Invoice) AmountDue() float64 {
	due := i.TotalAmount - i.Discount - i.PaidTotal()
	if due < 0 {
		return 0
	}
	return due
}

// DeriveStatus maps the payment ledger onto an invoice status. It never
// returns cancelled; cancellation is an explicit operation outside this rule.
func DeriveStatus(total, discount, paid float64) string {
	switch {
	case paid <= 0:
		return StatusPending
	case paid >= total-discount:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// NewInvoiceNumber builds a human-readable invoice number such as
// INV-20240601-3F7A2C.
func NewInvoiceNumber(now time.Time) string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return "INV-" + now.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(suffix))
}
