package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"smidi/billing/internal/cache"
	"smidi/billing/internal/domain"
	"smidi/billing/internal/draft"
	"smidi/billing/internal/screen"
	"smidi/billing/internal/xid"
)

// SessionParams are the values a billing session starts from. EmployeeID
// pins the employee for every bill of the session; DealerName pre-fills the
// first customer.
type SessionParams struct {
	EmployeeID   string
	EmployeeName string
	DealerName   string
}

// BillingSession drives one billing screen: the catalog load, the draft
// and its submission. The draft itself has a single writer.
type BillingSession struct {
	svc      *Service
	log      zerolog.Logger
	draft    *draft.Draft
	products screen.Loadable[[]domain.Product]

	mu         sync.Mutex
	notes      string
	saving     bool
	pendingKey string
	pendingReq domain.CreateBillRequest
}

func (s *Service) NewBillingSession(p SessionParams) *BillingSession {
	opts := []draft.Option{draft.WithDefaultCustomerName(strings.TrimSpace(p.DealerName))}
	if strings.TrimSpace(p.EmployeeID) != "" {
		opts = append(opts, draft.WithEmployee(p.EmployeeID, p.EmployeeName))
	}

	return &BillingSession{
		svc:   s,
		log:   s.log.With().Str("component", "billing").Logger(),
		draft: draft.New(nil, opts...),
	}
}

func (b *BillingSession) Draft() *draft.Draft {
	return b.draft
}

// LoadProducts refreshes the catalog used for item validation.
func (b *BillingSession) LoadProducts(ctx context.Context) error {
	ticket := b.products.Begin()
	products, err := b.svc.Products(ctx)
	if err != nil {
		b.products.Fail(ticket, err)
		b.log.Warn().Err(err).Msg("product load failed")
		return err
	}
	b.products.Resolve(ticket, products)
	b.draft.ReplaceCatalog(b.products.Snapshot().Value)
	return nil
}

func (b *BillingSession) Products() screen.Snapshot[[]domain.Product] {
	return b.products.Snapshot()
}

func (b *BillingSession) SetNotes(notes string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = notes
}

func (b *BillingSession) Notes() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notes
}

// Save submits the draft. A failed save leaves the draft and notes as they
// were, and a retry of the same payload reuses the idempotency key. On
// success the draft is reset and the catalog cache dropped, since stock
// has changed.
func (b *BillingSession) Save(ctx context.Context) (domain.Bill, error) {
	b.mu.Lock()
	if b.saving {
		b.mu.Unlock()
		return domain.Bill{}, ErrSaveInProgress
	}
	req, err := b.draft.SavePayload(b.notes)
	if err != nil {
		b.mu.Unlock()
		return domain.Bill{}, employeeGate(err)
	}
	if b.pendingKey == "" || !b.pendingReq.Equal(req) {
		b.pendingKey = xid.New("bill")
		b.pendingReq = req
	}
	key := b.pendingKey
	b.saving = true
	b.mu.Unlock()

	bill, err := b.svc.api.CreateBill(ctx, req, key)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.saving = false
	if err != nil {
		b.log.Warn().Err(err).Str("idempotency_key", key).Msg("bill save failed")
		return domain.Bill{}, fmt.Errorf("save bill: %w", err)
	}

	b.log.Info().
		Str("bill_id", bill.ID).
		Int("customers", len(req.Customers)).
		Msg("bill saved")

	b.pendingKey = ""
	b.pendingReq = domain.CreateBillRequest{}
	b.notes = ""
	b.draft.Reset()
	b.svc.invalidate(ctx, cache.KeyProducts)
	return bill, nil
}

// employeeGate reports a draft whose only problem is the missing employee
// as ErrEmployeeRequired, so callers can send the user to pick one.
func employeeGate(err error) error {
	var ve *draft.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) == 1 && ve.HasField("employeeId") {
		return fmt.Errorf("%w: %w", ErrEmployeeRequired, err)
	}
	return err
}
