package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/store"
	"smidi/billing/internal/xid"
)

type Store struct {
	mu        sync.RWMutex
	billsByID map[string]domain.Bill
	runs      []store.MirrorRun
}

func New() *Store {
	return &Store{billsByID: make(map[string]domain.Bill)}
}

func (s *Store) UpsertBills(_ context.Context, bills []domain.Bill) (int, error) {
	if err := store.ValidateBills(bills); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bills {
		b.CreatedAt = b.CreatedAt.UTC()
		s.billsByID[b.ID] = b
	}
	return len(bills), nil
}

func (s *Store) ListBills(_ context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, len(s.billsByID))
	for _, b := range s.billsByID {
		if !from.IsZero() && b.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !b.CreatedAt.Before(to) {
			continue
		}
		bills = append(bills, b)
	}

	slices.SortFunc(bills, func(a, b domain.Bill) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return bills, nil
}

func (s *Store) GetBill(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyBill := bill
	return &copyBill, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.billsByID), nil
}

func (s *Store) RecordMirrorRun(_ context.Context, run store.MirrorRun) error {
	if run.ID == "" {
		run.ID = xid.New("mirror")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) LastMirrorRun(_ context.Context) (*store.MirrorRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, store.ErrNotFound
	}
	last := s.runs[len(s.runs)-1]
	return &last, nil
}
