package prescription

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

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const rxCols = `id, appointment_id, patient_id, doctor_id, diagnosis, notes, follow_up_date, created_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.AppointmentID, &p.PatientID, &p.DoctorID,
		&p.Diagnosis, &p.Notes, &p.FollowUpDate, &p.CreatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	q := r.conn(ctx)
	p.ID = uuid.New()
	_, err := q.Exec(ctx, `
		INSERT INTO prescriptions (id, appointment_id, patient_id, doctor_id, diagnosis, notes, follow_up_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.AppointmentID, p.PatientID, p.DoctorID, p.Diagnosis, p.Notes, p.FollowUpDate)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert prescription", err)
	}
	for i := range p.Items {
		item := &p.Items[i]
		item.ID = uuid.New()
		item.PrescriptionID = p.ID
		_, err = q.Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, kind, name, dosage, frequency, duration_days, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			item.ID, item.PrescriptionID, item.Kind, item.Name,
			item.Dosage, item.Frequency, item.DurationDays, item.Instructions)
		if err != nil {
			return apperr.Wrap(apperr.Persistence, "insert prescription item", err)
		}
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.getOne(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id)
}

func (r *prescriptionRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	return r.getOne(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE appointment_id = $1`, appointmentID)
}

func (r *prescriptionRepoPG) getOne(ctx context.Context, query string, arg uuid.UUID) (*Prescription, error) {
	q := r.conn(ctx)
	p, err := scanPrescription(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("prescription for %s not found", arg)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get prescription", err)
	}
	if p.Items, err = r.loadItems(ctx, q, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, q queryable, prescriptionID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, prescription_id, kind, name, dosage, frequency, duration_days, instructions
		FROM prescription_items WHERE prescription_id = $1 ORDER BY name`, prescriptionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "list prescription items", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.Kind, &it.Name,
			&it.Dosage, &it.Frequency, &it.DurationDays, &it.Instructions); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan prescription item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Prescription, int, error) {
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
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count prescriptions", err)
	}

	query := `SELECT ` + rxCols + ` FROM prescriptions` + where +
		` ORDER BY created_at DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list prescriptions", err)
	}
	defer rows.Close()

	var prescriptions []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan prescription", err)
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, total, rows.Err()
}
