package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smidi/billing/internal/analytics"
	"smidi/billing/internal/domain"
)

const (
	recentBillsLimit = 5
	weeklyBillsLimit = 100
	weeklyLookback   = 30
)

type DashboardView struct {
	Summary domain.DashboardSummary
	Recent  []domain.Bill
	Weekly  []analytics.DayRevenue
	// Failed names the parts that could not be loaded and show zero values.
	Failed []string
}

// Dashboard loads the summary, the latest bills and the weekly revenue
// concurrently. A failing part is logged and left empty.
func (s *Service) Dashboard(ctx context.Context) DashboardView {
	now := s.now()
	view := DashboardView{
		Recent: []domain.Bill{},
		Weekly: analytics.WeeklyRevenue(nil, now),
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	fail := func(part string, err error) {
		s.log.Warn().Err(err).Str("part", part).Msg("dashboard load failed")
		mu.Lock()
		view.Failed = append(view.Failed, part)
		mu.Unlock()
	}

	g.Go(func() error {
		summary, err := s.api.Dashboard(ctx)
		if err != nil {
			fail("summary", err)
			return nil
		}
		mu.Lock()
		view.Summary = summary
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		page, err := s.api.ListBills(ctx, domain.BillListQuery{Page: 1, Limit: recentBillsLimit})
		if err != nil {
			fail("recent", err)
			return nil
		}
		recent := page.Bills
		if len(recent) > recentBillsLimit {
			recent = recent[:recentBillsLimit]
		}
		mu.Lock()
		view.Recent = recent
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		startDate := now.AddDate(0, 0, -weeklyLookback).UTC().Format(time.DateOnly)
		page, err := s.api.ListBills(ctx, domain.BillListQuery{StartDate: startDate, Limit: weeklyBillsLimit})
		if err != nil {
			fail("weekly", err)
			return nil
		}
		weekly := analytics.WeeklyRevenue(page.Bills, now)
		mu.Lock()
		view.Weekly = weekly
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	slices.Sort(view.Failed)
	return view
}
