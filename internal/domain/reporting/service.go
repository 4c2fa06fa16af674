package reporting

import (
	"context"
	"time"

	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Windows the dashboard supports.
var validWindows = map[int]bool{7: true, 30: true}

type Service struct {
	reports  ReportRepository
	resolver *scope.Resolver
}

func NewService(reports ReportRepository, resolver *scope.Resolver) *Service {
	return &Service{reports: reports, resolver: resolver}
}

// Summary aggregates the caller's visible appointments and payments over the
// last 7 or 30 days.
func (s *Service) Summary(ctx context.Context, caller auth.CallerContext, days int) (*Summary, error) {
	if !validWindows[days] {
		return nil, apperr.Validationf("days must be 7 or 30")
	}
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	since := time.Now().AddDate(0, 0, -days)

	stats, err := s.reports.AppointmentStats(ctx, filter, since)
	if err != nil {
		return nil, err
	}
	payments, err := s.reports.PaymentsTotal(ctx, filter, since)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Days:             days,
		Appointments:     stats.Total,
		Completed:        stats.Completed,
		Cancelled:        stats.Cancelled,
		Earnings:         stats.Earnings,
		PaymentsReceived: payments,
	}, nil
}
