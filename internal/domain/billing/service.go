package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Service owns the billing ledger. Totals are computed once at creation;
// payments only ever append, and status is re-derived from the ledger.
type Service struct {
	invoices InvoiceRepository
	resolver *scope.Resolver
	tx       db.Tx
}

func NewService(invoices InvoiceRepository, resolver *scope.Resolver, tx db.Tx) *Service {
	return &Service{invoices: invoices, resolver: resolver, tx: tx}
}

// ServiceLine is one billed service in a create request.
type ServiceLine struct {
	ServiceName string  `json:"service_name"`
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
}

type CreateInvoiceRequest struct {
	PatientID      uuid.UUID     `json:"patient_id"`
	DoctorID       *uuid.UUID    `json:"doctor_id,omitempty"`
	AppointmentID  *uuid.UUID    `json:"appointment_id,omitempty"`
	Services       []ServiceLine `json:"services"`
	Discount       float64       `json:"discount"`
	InitialPayment float64       `json:"initial_payment"`
	PaymentMode    string        `json:"payment_mode"`
}

// CreateInvoice computes line amounts and the invoice total, derives the
// initial status, and persists the invoice, its items and any first payment
// as one transactional unit.
func (s *Service) CreateInvoice(ctx context.Context, caller auth.CallerContext, req CreateInvoiceRequest) (*Invoice, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if len(req.Services) == 0 {
		return nil, apperr.Validationf("at least one service line is required")
	}
	if req.Discount < 0 {
		return nil, apperr.Validationf("discount cannot be negative")
	}
	if req.InitialPayment < 0 {
		return nil, apperr.Validationf("initial_payment cannot be negative")
	}

	items := make([]InvoiceItem, 0, len(req.Services))
	var total float64
	for _, line := range req.Services {
		if line.ServiceName == "" {
			return nil, apperr.Validationf("service_name is required on every line")
		}
		if line.Quantity <= 0 {
			return nil, apperr.Validationf("quantity must be positive for %s", line.ServiceName)
		}
		if line.Rate < 0 {
			return nil, apperr.Validationf("rate cannot be negative for %s", line.ServiceName)
		}
		amount := float64(line.Quantity) * line.Rate
		items = append(items, InvoiceItem{
			ServiceName: line.ServiceName,
			Quantity:    line.Quantity,
			Rate:        line.Rate,
			Amount:      amount,
		})
		total += amount
	}
	if req.Discount > total {
		return nil, apperr.Validationf("discount %.2f exceeds invoice total %.2f", req.Discount, total)
	}

	doctorID, err := s.resolveIssuer(ctx, caller, req.DoctorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inv := &Invoice{
		Number:        NewInvoiceNumber(now),
		PatientID:     req.PatientID,
		DoctorID:      doctorID,
		ClinicID:      caller.ClinicID,
		AppointmentID: req.AppointmentID,
		Discount:      req.Discount,
		TotalAmount:   total,
		Items:         items,
		Status:        DeriveStatus(total, req.Discount, req.InitialPayment),
	}
	if req.InitialPayment > 0 {
		mode := req.PaymentMode
		if mode == "" {
			mode = PaymentCash
		}
		if !validPaymentModes[mode] {
			return nil, apperr.Validationf("invalid payment mode %q", mode)
		}
		inv.Payments = []InvoicePayment{{Mode: mode, Amount: req.InitialPayment, PaidAt: now}}
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.invoices.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// resolveIssuer pins the invoice's doctor. A doctor always issues as
// themselves; clinic staff may only issue for doctors on their roster.
func (s *Service) resolveIssuer(ctx context.Context, caller auth.CallerContext, requested *uuid.UUID) (*uuid.UUID, error) {
	if caller.Role == auth.RoleDoctor {
		if caller.DoctorID == nil {
			return nil, apperr.Authorizationf("doctor identity missing from caller")
		}
		return caller.DoctorID, nil
	}
	if requested == nil {
		return nil, nil
	}
	if caller.IsAdmin() {
		return requested, nil
	}
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !filter.All && !filter.AllowsDoctor(*requested) {
		return nil, apperr.Authorizationf("doctor %s is outside the caller's scope", requested)
	}
	return requested, nil
}

type RecordPaymentRequest struct {
	Mode   string  `json:"mode"`
	Amount float64 `json:"amount"`
}

// RecordPayment appends a ledger entry and re-derives the invoice status.
// The invoice total is never touched.
func (s *Service) RecordPayment(ctx context.Context, caller auth.CallerContext, invoiceID uuid.UUID, req RecordPaymentRequest) (*Invoice, error) {
	if req.Amount <= 0 {
		return nil, apperr.Validationf("payment amount must be positive")
	}
	if req.Mode == "" {
		req.Mode = PaymentCash
	}
	if !validPaymentModes[req.Mode] {
		return nil, apperr.Validationf("invalid payment mode %q", req.Mode)
	}

	inv, err := s.get(ctx, caller, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return nil, apperr.Conflictf("invoice %s is cancelled", invoiceID)
	}

	payment := InvoicePayment{InvoiceID: inv.ID, Mode: req.Mode, Amount: req.Amount, PaidAt: time.Now()}

	// The status is derived from the persisted ledger under a row lock, so
	// concurrent payments against the same invoice serialize and each sees
	// the other's entries.
	var status string
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.invoices.LockForPayment(ctx, inv.ID); err != nil {
			return err
		}
		if err := s.invoices.AddPayment(ctx, &payment); err != nil {
			return err
		}
		paid, err := s.invoices.PaymentsTotal(ctx, inv.ID)
		if err != nil {
			return err
		}
		status = DeriveStatus(inv.TotalAmount, inv.Discount, paid)
		return s.invoices.UpdateStatus(ctx, inv.ID, status)
	})
	if err != nil {
		return nil, err
	}

	inv.Payments = append(inv.Payments, payment)
	inv.Status = status
	return inv, nil
}

// CancelInvoice marks the invoice cancelled. The ledger is kept; further
// payments are refused.
func (s *Service) CancelInvoice(ctx context.Context, caller auth.CallerContext, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := s.get(ctx, caller, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return inv, nil
	}
	if err := s.invoices.UpdateStatus(ctx, inv.ID, StatusCancelled); err != nil {
		return nil, err
	}
	inv.Status = StatusCancelled
	return inv, nil
}

func (s *Service) Get(ctx context.Context, caller auth.CallerContext, invoiceID uuid.UUID) (*Invoice, error) {
	return s.get(ctx, caller, invoiceID)
}

func (s *Service) List(ctx context.Context, caller auth.CallerContext, limit, offset int) ([]*Invoice, int, error) {
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	return s.invoices.List(ctx, filter, limit, offset)
}

func (s *Service) get(ctx context.Context, caller auth.CallerContext, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if filter.All || filter.AllowsPatient(inv.PatientID) {
		return inv, nil
	}
	if inv.DoctorID != nil && filter.AllowsDoctor(*inv.DoctorID) {
		return inv, nil
	}
	return nil, apperr.Authorizationf("invoice %s is outside the caller's scope", invoiceID)
}
