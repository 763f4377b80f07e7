package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"smidi/billing/internal/analytics"
	"smidi/billing/internal/domain"
	"smidi/billing/internal/screen"
)

const reportPageSize = 10

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ReportQuery filters the transaction report. Employee is sent to the API
// as the dealer filter. Dates that are not YYYY-MM-DD are ignored.
type ReportQuery struct {
	Page      int
	Customer  string
	Employee  string
	StartDate string
	EndDate   string
}

type ReportPage struct {
	Bills []domain.Bill
	Stats analytics.ReportSummary
	Page  int
	Pages int
	Total int
}

type Reports struct {
	svc   *Service
	log   zerolog.Logger
	state screen.Loadable[ReportPage]
}

func (s *Service) Reports() *Reports {
	return &Reports{svc: s, log: s.log.With().Str("component", "reports").Logger()}
}

func (r *Reports) Load(ctx context.Context, q ReportQuery) (ReportPage, error) {
	filter := domain.BillFilterQuery{
		Page:     max(q.Page, 1),
		Limit:    reportPageSize,
		Customer: strings.TrimSpace(q.Customer),
		Dealer:   strings.TrimSpace(q.Employee),
	}
	if isoDate.MatchString(q.StartDate) {
		filter.StartDate = q.StartDate
	}
	if isoDate.MatchString(q.EndDate) {
		filter.EndDate = q.EndDate
	}

	ticket := r.state.Begin()
	result, err := r.svc.api.FilterBills(ctx, filter)
	if err != nil {
		r.state.Fail(ticket, err)
		r.log.Warn().Err(err).Int("page", filter.Page).Msg("report load failed")
		return ReportPage{}, err
	}

	page := ReportPage{
		Bills: result.Bills,
		Stats: analytics.ReportStats(result.Bills, result.Total),
		Page:  filter.Page,
		Pages: result.Pages,
		Total: result.Total,
	}
	r.state.Resolve(ticket, page)
	return page, nil
}

func (r *Reports) Snapshot() screen.Snapshot[ReportPage] {
	return r.state.Snapshot()
}

// Dealers lists customer names for the report filter. When the API call
// fails the names are taken from the last loaded page.
func (r *Reports) Dealers(ctx context.Context) ([]string, error) {
	names, err := r.svc.api.ListBillDealers(ctx)
	if err == nil {
		return names, nil
	}
	r.log.Warn().Err(err).Msg("dealer list failed, using loaded bills")
	return analytics.DealersFromBills(r.state.Snapshot().Value.Bills), nil
}
