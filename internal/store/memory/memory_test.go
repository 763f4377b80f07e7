package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/store"
)

func TestUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	day := func(d int) time.Time { return time.Date(2025, 3, d, 9, 0, 0, 0, time.UTC) }
	bills := []domain.Bill{
		{ID: "b1", TotalAmount: decimal.NewFromInt(100), CreatedAt: day(1)},
		{ID: "b2", TotalAmount: decimal.NewFromInt(200), CreatedAt: day(5)},
		{ID: "b3", TotalAmount: decimal.NewFromInt(300), CreatedAt: day(9)},
	}

	n, err := s.UpsertBills(ctx, bills)
	if err != nil || n != 3 {
		t.Fatalf("upsert: n=%d err=%v", n, err)
	}

	// Replacing a bill keeps the count.
	if _, err := s.UpsertBills(ctx, []domain.Bill{{ID: "b2", TotalAmount: decimal.NewFromInt(250), CreatedAt: day(5)}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if count, _ := s.Count(ctx); count != 3 {
		t.Fatalf("expected 3 bills, got %d", count)
	}

	all, err := s.ListBills(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "b3" || all[2].ID != "b1" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	window, err := s.ListBills(ctx, day(5), day(9))
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 1 || window[0].ID != "b2" || !window[0].TotalAmount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected window %+v", window)
	}
}

func TestUpsertRejectsBillWithoutID(t *testing.T) {
	s := New()
	_, err := s.UpsertBills(context.Background(), []domain.Bill{{ID: "ok"}, {}})
	if !errors.Is(err, store.ErrInvalidBill) {
		t.Fatalf("expected ErrInvalidBill, got %v", err)
	}
	if count, _ := s.Count(context.Background()); count != 0 {
		t.Fatalf("expected nothing written, got %d", count)
	}
}

func TestGetBill(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetBill(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.UpsertBills(ctx, []domain.Bill{{ID: "b1", EmployeeName: "Ravi"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	bill, err := s.GetBill(ctx, "b1")
	if err != nil || bill.EmployeeName != "Ravi" {
		t.Fatalf("unexpected bill %+v err=%v", bill, err)
	}
}

func TestMirrorRuns(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.LastMirrorRun(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.RecordMirrorRun(ctx, store.MirrorRun{Pages: 1, Bills: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordMirrorRun(ctx, store.MirrorRun{Pages: 2, Bills: 20}); err != nil {
		t.Fatalf("record: %v", err)
	}

	last, err := s.LastMirrorRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last.Pages != 2 || last.ID == "" {
		t.Fatalf("unexpected last run %+v", last)
	}
}

func TestListBillsOrdersTiesByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.UpsertBills(ctx, []domain.Bill{{ID: "b2", CreatedAt: at}, {ID: "b10", CreatedAt: at}, {ID: "a1", CreatedAt: at}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	bills, err := s.ListBills(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bills) != 3 || bills[0].ID != "a1" || bills[1].ID != "b10" || bills[2].ID != "b2" {
		t.Fatalf("unexpected order %+v", bills)
	}
}
