package reporting

import (
	"context"
	"time"

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

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *reportRepoPG) AppointmentStats(ctx context.Context, filter scope.Filter, since time.Time) (AppointmentStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(earnings) FILTER (WHERE status = 'completed'), 0)
		FROM appointments
		WHERE created_at >= $1`
	args := []interface{}{since}
	switch {
	case filter.All:
	case filter.PatientID != nil:
		query += ` AND patient_id = $2`
		args = append(args, *filter.PatientID)
	default:
		if len(filter.DoctorIDs) == 0 {
			return AppointmentStats{}, nil
		}
		query += ` AND doctor_id = ANY($2)`
		args = append(args, filter.DoctorIDs)
	}

	var stats AppointmentStats
	err := r.conn(ctx).QueryRow(ctx, query, args...).
		Scan(&stats.Total, &stats.Completed, &stats.Cancelled, &stats.Earnings)
	if err != nil {
		return AppointmentStats{}, apperr.Wrap(apperr.Persistence, "appointment stats", err)
	}
	return stats, nil
}

func (r *reportRepoPG) PaymentsTotal(ctx context.Context, filter scope.Filter, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM invoice_payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE p.paid_at >= $1`
	args := []interface{}{since}
	switch {
	case filter.All:
	case filter.PatientID != nil:
		query += ` AND i.patient_id = $2`
		args = append(args, *filter.PatientID)
	default:
		if len(filter.DoctorIDs) == 0 {
			return 0, nil
		}
		query += ` AND i.doctor_id = ANY($2)`
		args = append(args, filter.DoctorIDs)
	}

	var total float64
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperr.Wrap(apperr.Persistence, "payments total", err)
	}
	return total, nil
}
