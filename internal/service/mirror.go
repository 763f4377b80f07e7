package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/store"
	"smidi/billing/internal/xid"
)

type ArchiveStatus struct {
	Bills   int              `json:"bills"`
	LastRun *store.MirrorRun `json:"lastRun,omitempty"`
}

const (
	mirrorPageSize    = 100
	mirrorConcurrency = 3
)

// Mirror copies up to maxPages pages of bills from the API into the local
// archive. The first page tells how many pages exist; the rest are fetched
// concurrently and written as one batch per page.
func (s *Service) Mirror(ctx context.Context, maxPages int) (store.MirrorRun, error) {
	if s.archive == nil {
		return store.MirrorRun{}, ErrNoArchive
	}
	if maxPages < 1 {
		maxPages = 1
	}

	run := store.MirrorRun{ID: xid.New("mirror"), StartedAt: s.now().UTC()}
	log := s.log.With().Str("run_id", run.ID).Logger()

	first, err := s.api.ListBills(ctx, domain.BillListQuery{Page: 1, Limit: mirrorPageSize})
	if err != nil {
		return run, fmt.Errorf("mirror page 1: %w", err)
	}
	written, err := s.archive.UpsertBills(ctx, first.Bills)
	if err != nil {
		return run, fmt.Errorf("archive page 1: %w", err)
	}

	pages := min(max(first.Pages, 1), maxPages)
	counts := make([]int, pages+1)
	counts[1] = written

	sem := semaphore.NewWeighted(mirrorConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for page := 2; page <= pages; page++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		page := page // per-iteration copy; go directive is 1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			defer sem.Release(1)

			result, err := s.api.ListBills(gctx, domain.BillListQuery{Page: page, Limit: mirrorPageSize})
			if err != nil {
				return fmt.Errorf("mirror page %d: %w", page, err)
			}
			n, err := s.archive.UpsertBills(gctx, result.Bills)
			if err != nil {
				return fmt.Errorf("archive page %d: %w", page, err)
			}
			counts[page] = n
			log.Debug().Int("page", page).Int("bills", n).Msg("page mirrored")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, err
	}
	if err := ctx.Err(); err != nil {
		return run, err
	}

	run.Pages = pages
	for _, n := range counts {
		run.Bills += n
	}
	run.FinishedAt = s.now().UTC()
	if err := s.archive.RecordMirrorRun(ctx, run); err != nil {
		return run, err
	}

	log.Info().Int("pages", run.Pages).Int("bills", run.Bills).Msg("mirror finished")
	return run, nil
}

// ArchiveStatus reports how many bills are archived and the latest mirror
// run, if any.
func (s *Service) ArchiveStatus(ctx context.Context) (ArchiveStatus, error) {
	if s.archive == nil {
		return ArchiveStatus{}, ErrNoArchive
	}
	n, err := s.archive.Count(ctx)
	if err != nil {
		return ArchiveStatus{}, err
	}
	status := ArchiveStatus{Bills: n}
	last, err := s.archive.LastMirrorRun(ctx)
	switch {
	case err == nil:
		status.LastRun = last
	case !errors.Is(err, store.ErrNotFound):
		return ArchiveStatus{}, err
	}
	return status, nil
}
