package store

import (
	"context"
	"errors"
	"time"

	"smidi/billing/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidBill = errors.New("invalid bill")
)

// MirrorRun records one pull of bills from the API into the archive.
type MirrorRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Pages      int       `json:"pages"`
	Bills      int       `json:"bills"`
}

// Archive is a local copy of bills fetched from the billing API, used for
// offline analytics. Bills are keyed by their API id.
type Archive interface {
	// UpsertBills inserts or replaces bills and returns how many were written.
	// A bill without an id fails the whole batch with ErrInvalidBill.
	UpsertBills(ctx context.Context, bills []domain.Bill) (int, error)
	// ListBills returns bills created in [from, to), newest first. A zero
	// bound is open.
	ListBills(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error)
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	Count(ctx context.Context) (int, error)
	RecordMirrorRun(ctx context.Context, run MirrorRun) error
	LastMirrorRun(ctx context.Context) (*MirrorRun, error)
}

// ValidateBills checks a batch before it is written.
func ValidateBills(bills []domain.Bill) error {
	for _, b := range bills {
		if b.ID == "" {
			return ErrInvalidBill
		}
	}
	return nil
}
