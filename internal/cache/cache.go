package cache

import (
	"context"
	"time"

	"smidi/billing/internal/domain"
)

// CatalogCache holds the product and employee lists between API calls. A
// miss is reported as ok=false with a nil error.
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error
	GetEmployees(ctx context.Context) ([]domain.Employee, bool, error)
	SetEmployees(ctx context.Context, employees []domain.Employee, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

const (
	KeyProducts  = "products"
	KeyEmployees = "employees"
)

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetProducts(_ context.Context, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) GetEmployees(_ context.Context) ([]domain.Employee, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetEmployees(_ context.Context, _ []domain.Employee, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
