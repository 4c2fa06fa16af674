package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/domain/scope"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, code, patient_id, doctor_id, appointment_date, appointment_time,
	mode, type, status, reason, earnings, duration_minutes, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Code, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&a.Mode, &a.Type, &a.Status, &a.Reason, &a.Earnings, &a.DurationMinutes,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// isSlotConflict detects a violation of the partial unique index on
// (doctor_id, appointment_date, appointment_time) WHERE status <> 'cancelled'.
func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	// reason is NOT NULL in the schema; an omitted reason is stored as "".
	reason := ""
	if a.Reason != nil {
		reason = *a.Reason
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, code, patient_id, doctor_id, appointment_date,
			appointment_time, mode, type, status, reason, earnings, duration_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Code, a.PatientID, a.DoctorID, a.Date, a.Time,
		a.Mode, a.Type, a.Status, reason, a.Earnings, a.DurationMinutes)
	if isSlotConflict(err) {
		return apperr.Conflictf("slot %s %s is already booked for doctor %s",
			a.Date.Format("2006-01-02"), a.Time, a.DoctorID)
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("appointment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByCode(ctx context.Context, code string) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("appointment %s not found", code)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get appointment by code", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, expectedCurrent, next string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, expectedCurrent, next)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or a concurrent writer moved it first.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.Conflictf("appointment %s is no longer %s", id, expectedCurrent)
	}
	return nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW()
		WHERE id = $1`,
		id, status)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "set appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("appointment %s not found", id)
	}
	return nil
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, id uuid.UUID, expectedCurrent string, newDate time.Time, newTime string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET appointment_date = $3, appointment_time = $4,
			status = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, expectedCurrent, newDate, newTime, StatusScheduled)
	if isSlotConflict(err) {
		return apperr.Conflictf("slot %s %s is already booked", newDate.Format("2006-01-02"), newTime)
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "reschedule appointment", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or a concurrent writer moved it first.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return apperr.Conflictf("appointment %s is no longer %s", id, expectedCurrent)
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("appointment %s not found", id)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, filter scope.Filter, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	switch {
	case filter.All:
		// no scoping clause
	case filter.PatientID != nil:
		query += ` AND patient_id = $1`
		countQuery += ` AND patient_id = $1`
		args = append(args, *filter.PatientID)
		idx++
	default:
		if len(filter.DoctorIDs) == 0 {
			return nil, 0, nil
		}
		query += ` AND doctor_id = ANY($1)`
		countQuery += ` AND doctor_id = ANY($1)`
		args = append(args, filter.DoctorIDs)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count appointments", err)
	}

	query += fmt.Sprintf(` ORDER BY appointment_date DESC, appointment_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list appointments", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan appointment", err)
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *appointmentRepoPG) BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> $3
		ORDER BY appointment_time`,
		doctorID, date, StatusCancelled)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "query booked slots", err)
	}
	defer rows.Close()
	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan slot time", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}
