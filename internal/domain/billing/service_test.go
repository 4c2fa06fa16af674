package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// mockInvoiceRepo keeps invoices in a map. beforeLock, when set, runs at the
// start of LockForPayment so tests can land a concurrent ledger write between
// the service's read and its transaction.
type mockInvoiceRepo struct {
	invoices   map[uuid.UUID]*Invoice
	beforeLock func()
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{invoices: make(map[uuid.UUID]*Invoice)}
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	for i := range inv.Items {
		inv.Items[i].ID = uuid.New()
		inv.Items[i].InvoiceID = inv.ID
	}
	for i := range inv.Payments {
		inv.Payments[i].ID = uuid.New()
		inv.Payments[i].InvoiceID = inv.ID
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, apperr.NotFoundf("invoice %s not found", id)
	}
	cp := *inv
	cp.Payments = append([]InvoicePayment(nil), inv.Payments...)
	return &cp, nil
}

func (m *mockInvoiceRepo) AddPayment(ctx context.Context, p *InvoicePayment) error {
	inv, ok := m.invoices[p.InvoiceID]
	if !ok {
		return apperr.NotFoundf("invoice %s not found", p.InvoiceID)
	}
	p.ID = uuid.New()
	inv.Payments = append(inv.Payments, *p)
	return nil
}

func (m *mockInvoiceRepo) LockForPayment(ctx context.Context, id uuid.UUID) error {
	if m.beforeLock != nil {
		m.beforeLock()
	}
	if _, ok := m.invoices[id]; !ok {
		return apperr.NotFoundf("invoice %s not found", id)
	}
	return nil
}

func (m *mockInvoiceRepo) PaymentsTotal(ctx context.Context, id uuid.UUID) (float64, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return 0, apperr.NotFoundf("invoice %s not found", id)
	}
	var total float64
	for _, p := range inv.Payments {
		total += p.Amount
	}
	return total, nil
}

func (m *mockInvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return apperr.NotFoundf("invoice %s not found", id)
	}
	inv.Status = status
	return nil
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Invoice, int, error) {
	var items []*Invoice
	for _, inv := range m.invoices {
		ok := filter.All || filter.AllowsPatient(inv.PatientID) ||
			(inv.DoctorID != nil && filter.AllowsDoctor(*inv.DoctorID))
		if ok {
			cp := *inv
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

// passthroughTx runs the unit of work without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staticDirectory struct {
	mapping map[uuid.UUID][]uuid.UUID
}

func (d *staticDirectory) DoctorIDsForClinic(ctx context.Context, clinicID uuid.UUID) ([]uuid.UUID, error) {
	return d.mapping[clinicID], nil
}

func newTestService(dir scope.DoctorDirectory) (*Service, *mockInvoiceRepo) {
	if dir == nil {
		dir = &staticDirectory{}
	}
	repo := newMockInvoiceRepo()
	return NewService(repo, scope.NewResolver(dir), passthroughTx{}), repo
}

func adminCaller() auth.CallerContext {
	return auth.CallerContext{UserID: "admin", Role: auth.RoleAdmin}
}

func consultationInvoice(patientID uuid.UUID) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		PatientID: patientID,
		Services: []ServiceLine{
			{ServiceName: "Consultation", Quantity: 1, Rate: 500},
			{ServiceName: "Blood Test", Quantity: 2, Rate: 200},
		},
		Discount: 100,
	}
}

func TestCreateInvoice_TotalsAndStatus(t *testing.T) {
	svc, _ := newTestService(nil)

	inv, err := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if inv.TotalAmount != 900 {
		t.Errorf("TotalAmount = %v, want 900 (500*1 + 200*2)", inv.TotalAmount)
	}
	if inv.Items[0].Amount != 500 || inv.Items[1].Amount != 400 {
		t.Errorf("item amounts = %v, %v; want 500, 400", inv.Items[0].Amount, inv.Items[1].Amount)
	}
	if inv.Status != StatusPending {
		t.Errorf("Status = %s, want pending", inv.Status)
	}
	if inv.AmountDue() != 800 {
		t.Errorf("AmountDue() = %v, want 800", inv.AmountDue())
	}
	if inv.Number == "" {
		t.Errorf("invoice number not generated")
	}
}

func TestCreateInvoice_WithInitialPayment(t *testing.T) {
	svc, _ := newTestService(nil)

	req := consultationInvoice(uuid.New())
	req.InitialPayment = 800
	inv, err := svc.CreateInvoice(context.Background(), adminCaller(), req)
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if inv.Status != StatusPaid {
		t.Errorf("Status = %s, want paid (800 covers 900-100)", inv.Status)
	}
	if len(inv.Payments) != 1 || inv.Payments[0].Amount != 800 {
		t.Errorf("initial payment not recorded: %+v", inv.Payments)
	}

	req = consultationInvoice(uuid.New())
	req.InitialPayment = 300
	inv, err = svc.CreateInvoice(context.Background(), adminCaller(), req)
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if inv.Status != StatusPartial {
		t.Errorf("Status = %s, want partial", inv.Status)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	svc, _ := newTestService(nil)
	patientID := uuid.New()
	cases := []struct {
		name string
		req  CreateInvoiceRequest
	}{
		{"no patient", CreateInvoiceRequest{Services: []ServiceLine{{ServiceName: "X", Quantity: 1, Rate: 10}}}},
		{"no services", CreateInvoiceRequest{PatientID: patientID}},
		{"unnamed line", CreateInvoiceRequest{PatientID: patientID, Services: []ServiceLine{{Quantity: 1, Rate: 10}}}},
		{"zero quantity", CreateInvoiceRequest{PatientID: patientID, Services: []ServiceLine{{ServiceName: "X", Rate: 10}}}},
		{"negative rate", CreateInvoiceRequest{PatientID: patientID, Services: []ServiceLine{{ServiceName: "X", Quantity: 1, Rate: -1}}}},
		{"negative discount", func() CreateInvoiceRequest { r := consultationInvoice(patientID); r.Discount = -5; return r }()},
		{"discount above total", func() CreateInvoiceRequest { r := consultationInvoice(patientID); r.Discount = 1000; return r }()},
		{"negative initial payment", func() CreateInvoiceRequest { r := consultationInvoice(patientID); r.InitialPayment = -1; return r }()},
		{"bad payment mode", func() CreateInvoiceRequest {
			r := consultationInvoice(patientID)
			r.InitialPayment = 100
			r.PaymentMode = "barter"
			return r
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateInvoice(context.Background(), adminCaller(), tc.req)
			if !apperr.IsKind(err, apperr.Validation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateInvoice_DoctorIssuesAsSelf(t *testing.T) {
	svc, repo := newTestService(nil)
	doctorID := uuid.New()
	other := uuid.New()
	caller := auth.CallerContext{Role: auth.RoleDoctor, DoctorID: &doctorID}

	req := consultationInvoice(uuid.New())
	req.DoctorID = &other
	inv, err := svc.CreateInvoice(context.Background(), caller, req)
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if got := repo.invoices[inv.ID].DoctorID; got == nil || *got != doctorID {
		t.Errorf("invoice doctor must be the calling doctor, got %v", got)
	}
}

func TestCreateInvoice_ReceptionistOutsideRoster(t *testing.T) {
	clinicID := uuid.New()
	mapped := uuid.New()
	dir := &staticDirectory{mapping: map[uuid.UUID][]uuid.UUID{clinicID: {mapped}}}
	svc, _ := newTestService(dir)
	caller := auth.CallerContext{Role: auth.RoleReceptionist, ClinicID: &clinicID}

	req := consultationInvoice(uuid.New())
	req.DoctorID = &mapped
	if _, err := svc.CreateInvoice(context.Background(), caller, req); err != nil {
		t.Errorf("mapped doctor should be accepted: %v", err)
	}

	outside := uuid.New()
	req = consultationInvoice(uuid.New())
	req.DoctorID = &outside
	_, err := svc.CreateInvoice(context.Background(), caller, req)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Errorf("unmapped doctor must be rejected, got %v", err)
	}
}

func TestRecordPayment_StatusProgression(t *testing.T) {
	svc, _ := newTestService(nil)
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))

	inv, err := svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Mode: PaymentCash, Amount: 300})
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if inv.Status != StatusPartial {
		t.Errorf("after 300 of 800 due: Status = %s, want partial", inv.Status)
	}

	inv, err = svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Mode: PaymentUPI, Amount: 500})
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if inv.Status != StatusPaid {
		t.Errorf("after settling: Status = %s, want paid", inv.Status)
	}
	if inv.TotalAmount != 900 {
		t.Errorf("TotalAmount must never change, got %v", inv.TotalAmount)
	}
	if len(inv.Payments) != 2 {
		t.Errorf("ledger must hold both entries, got %d", len(inv.Payments))
	}
}

func TestRecordPayment_ConcurrentLedgerEntry(t *testing.T) {
	svc, repo := newTestService(nil)
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))

	// A second payment of 400 commits after this call's read but before its
	// transaction. The status must come from the full ledger, not from the
	// stale in-memory snapshot.
	repo.beforeLock = func() {
		stored := repo.invoices[inv.ID]
		stored.Payments = append(stored.Payments, InvoicePayment{
			ID: uuid.New(), InvoiceID: inv.ID, Mode: PaymentCard, Amount: 400,
		})
	}

	got, err := svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Mode: PaymentCash, Amount: 400})
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if got.Status != StatusPaid {
		t.Errorf("800 paid of 800 due: Status = %s, want paid", got.Status)
	}
	if stored := repo.invoices[inv.ID]; stored.Status != StatusPaid {
		t.Errorf("stored Status = %s, want paid", stored.Status)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	svc, _ := newTestService(nil)
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))

	_, err := svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Amount: 0})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("zero amount must be rejected, got %v", err)
	}
	_, err = svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Mode: "barter", Amount: 10})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("unknown mode must be rejected, got %v", err)
	}
	_, err = svc.RecordPayment(context.Background(), adminCaller(), uuid.New(), RecordPaymentRequest{Amount: 10})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("unknown invoice must be not found, got %v", err)
	}
}

func TestRecordPayment_CancelledInvoice(t *testing.T) {
	svc, repo := newTestService(nil)
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))
	if _, err := svc.CancelInvoice(context.Background(), adminCaller(), inv.ID); err != nil {
		t.Fatalf("CancelInvoice() error: %v", err)
	}

	_, err := svc.RecordPayment(context.Background(), adminCaller(), inv.ID, RecordPaymentRequest{Amount: 800})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("payments on a cancelled invoice must conflict, got %v", err)
	}
	if repo.invoices[inv.ID].Status != StatusCancelled {
		t.Errorf("cancelled invoice must stay cancelled regardless of payments")
	}
}

func TestCancelInvoice_Idempotent(t *testing.T) {
	svc, _ := newTestService(nil)
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))

	if _, err := svc.CancelInvoice(context.Background(), adminCaller(), inv.ID); err != nil {
		t.Fatalf("CancelInvoice() error: %v", err)
	}
	got, err := svc.CancelInvoice(context.Background(), adminCaller(), inv.ID)
	if err != nil {
		t.Fatalf("second cancel should not fail: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
}

func TestGet_PatientScope(t *testing.T) {
	svc, _ := newTestService(nil)
	patientID := uuid.New()
	inv, _ := svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(patientID))

	owner := auth.CallerContext{Role: auth.RolePatient, PatientID: &patientID}
	if _, err := svc.Get(context.Background(), owner, inv.ID); err != nil {
		t.Errorf("patient should read own invoice: %v", err)
	}

	otherID := uuid.New()
	stranger := auth.CallerContext{Role: auth.RolePatient, PatientID: &otherID}
	_, err := svc.Get(context.Background(), stranger, inv.ID)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Errorf("foreign invoice must be rejected, got %v", err)
	}
}

func TestList_ClinicScope(t *testing.T) {
	clinicID := uuid.New()
	mapped := uuid.New()
	dir := &staticDirectory{mapping: map[uuid.UUID][]uuid.UUID{clinicID: {mapped}}}
	svc, _ := newTestService(dir)

	req := consultationInvoice(uuid.New())
	req.DoctorID = &mapped
	svc.CreateInvoice(context.Background(), adminCaller(), req)
	svc.CreateInvoice(context.Background(), adminCaller(), consultationInvoice(uuid.New()))

	caller := auth.CallerContext{Role: auth.RoleClinic, ClinicID: &clinicID}
	items, total, err := svc.List(context.Background(), caller, 20, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("clinic must only see invoices raised for its doctors, got %d", total)
	}
}
