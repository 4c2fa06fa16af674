package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const invoiceCols = `id, invoice_number, patient_id, doctor_id, clinic_id, appointment_id,
	discount, total_amount, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.PatientID, &inv.DoctorID, &inv.ClinicID,
		&inv.AppointmentID, &inv.Discount, &inv.TotalAmount, &inv.Status,
		&inv.CreatedAt, &inv.UpdatedAt)
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	q := r.conn(ctx)
	inv.ID = uuid.New()
	_, err := q.Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, patient_id, doctor_id, clinic_id,
			appointment_id, discount, total_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		inv.ID, inv.Number, inv.PatientID, inv.DoctorID, inv.ClinicID,
		inv.AppointmentID, inv.Discount, inv.TotalAmount, inv.Status)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert invoice", err)
	}
	for i := range inv.Items {
		item := &inv.Items[i]
		item.ID = uuid.New()
		item.InvoiceID = inv.ID
		_, err = q.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, service_name, quantity, rate, amount)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			item.ID, item.InvoiceID, item.ServiceName, item.Quantity, item.Rate, item.Amount)
		if err != nil {
			return apperr.Wrap(apperr.Persistence, "insert invoice item", err)
		}
	}
	for i := range inv.Payments {
		p := &inv.Payments[i]
		p.InvoiceID = inv.ID
		if err := r.AddPayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	q := r.conn(ctx)
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("invoice %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get invoice", err)
	}
	if inv.Items, err = r.loadItems(ctx, q, id); err != nil {
		return nil, err
	}
	if inv.Payments, err = r.loadPayments(ctx, q, id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepoPG) loadItems(ctx context.Context, q queryable, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, service_name, quantity, rate, amount
		FROM invoice_items WHERE invoice_id = $1 ORDER BY service_name`, invoiceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "list invoice items", err)
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ServiceName, &it.Quantity, &it.Rate, &it.Amount); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan invoice item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *invoiceRepoPG) loadPayments(ctx context.Context, q queryable, invoiceID uuid.UUID) ([]InvoicePayment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, mode, amount, paid_at
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY paid_at`, invoiceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "list invoice payments", err)
	}
	defer rows.Close()

	var payments []InvoicePayment
	for rows.Next() {
		var p InvoicePayment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Mode, &p.Amount, &p.PaidAt); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan invoice payment", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *invoiceRepoPG) AddPayment(ctx context.Context, p *InvoicePayment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_payments (id, invoice_id, mode, amount, paid_at)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.InvoiceID, p.Mode, p.Amount, p.PaidAt)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert invoice payment", err)
	}
	return nil
}

func (r *invoiceRepoPG) LockForPayment(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("invoice %s not found", id)
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "lock invoice", err)
	}
	return nil
}

func (r *invoiceRepoPG) PaymentsTotal(ctx context.Context, id uuid.UUID) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1`, id).Scan(&total)
	if err != nil {
		return 0, apperr.Wrap(apperr.Persistence, "sum invoice payments", err)
	}
	return total, nil
}

func (r *invoiceRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update invoice status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("invoice %s not found", id)
	}
	return nil
}

func (r *invoiceRepoPG) List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Invoice, int, error) {
	where := ""
	var args []interface{}
	switch {
	case filter.All:
	case filter.PatientID != nil:
		where = ` WHERE patient_id = $1`
		args = append(args, *filter.PatientID)
	default:
		if len(filter.DoctorIDs) == 0 {
			return nil, 0, nil
		}
		where = ` WHERE doctor_id = ANY($1)`
		args = append(args, filter.DoctorIDs)
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count invoices", err)
	}

	query := `SELECT ` + invoiceCols + ` FROM invoices` + where +
		` ORDER BY created_at DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list invoices", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan invoice", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}
