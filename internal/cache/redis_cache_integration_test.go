package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"smidi/billing/internal/domain"
)

func TestRedisCatalogCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := NewRedisCatalogCache(addr, os.Getenv("REDIS_TEST_PASSWORD"), 0)
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := c.Invalidate(ctx, KeyProducts, KeyEmployees); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, ok, err := c.GetProducts(ctx); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	products := []domain.Product{domain.Product{ID: "p1", Name: "Urea", Quantity: 10}.Normalize()}
	if err := c.SetProducts(ctx, products, time.Minute); err != nil {
		t.Fatalf("set products: %v", err)
	}
	got, ok, err := c.GetProducts(ctx)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].Name != "Urea" || got[0].CommissionPercent == nil {
		t.Fatalf("unexpected products %+v", got)
	}

	if err := c.SetEmployees(ctx, []domain.Employee{{ID: "e1", Name: "Ravi"}}, time.Minute); err != nil {
		t.Fatalf("set employees: %v", err)
	}
	if err := c.Invalidate(ctx, KeyEmployees); err != nil {
		t.Fatalf("invalidate employees: %v", err)
	}
	if _, ok, _ := c.GetEmployees(ctx); ok {
		t.Fatalf("expected employees to be invalidated")
	}
}
