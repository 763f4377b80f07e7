package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"smidi/billing/internal/analytics"
	"smidi/billing/internal/domain"
)

const analyticsBillsLimit = 1000

type AnalyticsSource int

const (
	SourceAPI AnalyticsSource = iota
	SourceArchive
)

func (s AnalyticsSource) String() string {
	if s == SourceArchive {
		return "archive"
	}
	return "api"
}

// Analytics builds the analytics report from the latest bills. Bills and
// products are required; employees only fill in names missing on bills.
func (s *Service) Analytics(ctx context.Context, source AnalyticsSource) (analytics.Report, error) {
	if source == SourceArchive && s.archive == nil {
		return analytics.Report{}, ErrNoArchive
	}

	var (
		bills     []domain.Bill
		products  []domain.Product
		employees []domain.Employee
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if source == SourceArchive {
			bills, err = s.archive.ListBills(gctx, time.Time{}, time.Time{})
			return err
		}
		page, err := s.api.ListBills(gctx, domain.BillListQuery{Limit: analyticsBillsLimit})
		if err != nil {
			return err
		}
		bills = page.Bills
		return nil
	})
	g.Go(func() error {
		var err error
		products, err = s.Products(gctx)
		return err
	})
	g.Go(func() error {
		list, err := s.Employees(gctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("analytics employee load failed")
			return nil
		}
		employees = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return analytics.Report{}, err
	}

	s.log.Debug().
		Str("source", source.String()).
		Int("bills", len(bills)).
		Int("products", len(products)).
		Msg("analytics loaded")

	return analytics.Build(fillEmployeeNames(bills, employees), products, s.now()), nil
}

func fillEmployeeNames(bills []domain.Bill, employees []domain.Employee) []domain.Bill {
	if len(employees) == 0 {
		return bills
	}
	names := make(map[string]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.Name
	}

	out := make([]domain.Bill, len(bills))
	for i, b := range bills {
		if b.EmployeeName == "" || b.EmployeeName == domain.UnknownEmployeeName {
			if name, ok := names[b.EmployeeID]; ok && name != "" {
				b.EmployeeName = name
			}
		}
		out[i] = b
	}
	return out
}
