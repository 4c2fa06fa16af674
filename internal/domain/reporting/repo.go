package reporting

import (
	"context"
	"time"

	"github.com/clinicore/clinicore/internal/domain/scope"
)

// AppointmentStats are the appointment-side aggregates for one window.
type AppointmentStats struct {
	Total     int
	Completed int
	Cancelled int
	Earnings  float64
}

// ReportRepository reads derived aggregates; it never writes.
type ReportRepository interface {
	AppointmentStats(ctx context.Context, filter scope.Filter, since time.Time) (AppointmentStats, error)
	PaymentsTotal(ctx context.Context, filter scope.Filter, since time.Time) (float64, error)
}
