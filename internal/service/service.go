package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"smidi/billing/internal/analytics"
	"smidi/billing/internal/cache"
	"smidi/billing/internal/domain"
	"smidi/billing/internal/store"
)

var (
	ErrNameRequired     = errors.New("name is required")
	ErrEmployeeRequired = errors.New("select an employee first")
	ErrSaveInProgress   = errors.New("bill save already in progress")
	ErrNoArchive        = errors.New("no local archive configured")
)

// transactionCountLimit matches the page size the employees screen uses to
// count bills.
const transactionCountLimit = 1000

// API is the subset of the billing API client the services use.
type API interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	CreateEmployee(ctx context.Context, name string) (domain.Employee, error)
	UpdateEmployee(ctx context.Context, id string, name string) (domain.Employee, error)
	DeleteEmployee(ctx context.Context, id string) error
	ListDealers(ctx context.Context, employeeID string) ([]domain.Dealer, error)
	CreateDealer(ctx context.Context, employeeID string, name string) error
	UpdateDealer(ctx context.Context, id string, name string) error
	DeleteDealer(ctx context.Context, id string) error
	ListBills(ctx context.Context, q domain.BillListQuery) (domain.BillPage, error)
	FilterBills(ctx context.Context, q domain.BillFilterQuery) (domain.BillPage, error)
	ListBillDealers(ctx context.Context) ([]string, error)
	Dashboard(ctx context.Context) (domain.DashboardSummary, error)
	CreateBill(ctx context.Context, req domain.CreateBillRequest, idempotencyKey string) (domain.Bill, error)
	DownloadBillPDF(ctx context.Context, id string, w io.Writer) (int64, error)
}

type Service struct {
	api        API
	catalog    cache.CatalogCache
	catalogTTL time.Duration
	archive    store.Archive
	log        zerolog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithCatalogCache(c cache.CatalogCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
		s.catalogTTL = ttl
	}
}

func WithArchive(a store.Archive) Option {
	return func(s *Service) {
		s.archive = a
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(api API, opts ...Option) *Service {
	s := &Service{
		api:        api,
		catalog:    cache.NoopCatalogCache{},
		catalogTTL: time.Minute,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Products returns the catalog, from cache when fresh.
func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	if products, ok, err := s.catalog.GetProducts(ctx); err != nil {
		s.log.Warn().Err(err).Msg("catalog cache read failed")
	} else if ok {
		return products, nil
	}
	return s.RefreshProducts(ctx)
}

// RefreshProducts fetches the catalog from the API and refreshes the cache.
func (s *Service) RefreshProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.api.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetProducts(ctx, products, s.catalogTTL); err != nil {
		s.log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return products, nil
}

func (s *Service) Employees(ctx context.Context) ([]domain.Employee, error) {
	if employees, ok, err := s.catalog.GetEmployees(ctx); err != nil {
		s.log.Warn().Err(err).Msg("employee cache read failed")
	} else if ok {
		return employees, nil
	}

	employees, err := s.api.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetEmployees(ctx, employees, s.catalogTTL); err != nil {
		s.log.Warn().Err(err).Msg("employee cache write failed")
	}
	return employees, nil
}

func (s *Service) AddEmployee(ctx context.Context, name string) (domain.Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Employee{}, ErrNameRequired
	}
	created, err := s.api.CreateEmployee(ctx, name)
	if err != nil {
		return domain.Employee{}, err
	}
	s.invalidate(ctx, cache.KeyEmployees)
	s.log.Info().Str("employee_id", created.ID).Str("name", created.Name).Msg("employee added")
	return created, nil
}

func (s *Service) RenameEmployee(ctx context.Context, id string, name string) (domain.Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Employee{}, ErrNameRequired
	}
	updated, err := s.api.UpdateEmployee(ctx, id, name)
	if err != nil {
		return domain.Employee{}, err
	}
	s.invalidate(ctx, cache.KeyEmployees)
	return updated, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	if err := s.api.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.KeyEmployees)
	s.log.Info().Str("employee_id", id).Msg("employee deleted")
	return nil
}

// TransactionCount counts bills among the latest thousand. A blank
// employeeID counts every bill.
func (s *Service) TransactionCount(ctx context.Context, employeeID string) (int, error) {
	page, err := s.api.ListBills(ctx, domain.BillListQuery{Limit: transactionCountLimit})
	if err != nil {
		return 0, err
	}
	if employeeID == "" {
		return len(page.Bills), nil
	}
	return analytics.EmployeeTransactionCount(page.Bills, employeeID), nil
}

// TransactionCounts counts bills per employee among the latest thousand
// with a single bill fetch.
func (s *Service) TransactionCounts(ctx context.Context) (map[string]int, error) {
	page, err := s.api.ListBills(ctx, domain.BillListQuery{Limit: transactionCountLimit})
	if err != nil {
		return nil, err
	}
	return analytics.TransactionCounts(page.Bills), nil
}

func (s *Service) Dealers(ctx context.Context, employeeID string) ([]domain.Dealer, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, ErrEmployeeRequired
	}
	return s.api.ListDealers(ctx, employeeID)
}

func (s *Service) AddDealer(ctx context.Context, employeeID string, name string) error {
	if strings.TrimSpace(employeeID) == "" {
		return ErrEmployeeRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	return s.api.CreateDealer(ctx, employeeID, name)
}

func (s *Service) RenameDealer(ctx context.Context, id string, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	return s.api.UpdateDealer(ctx, id, name)
}

func (s *Service) DeleteDealer(ctx context.Context, id string) error {
	return s.api.DeleteDealer(ctx, id)
}

// Bill looks a bill up in the local archive first, then among the latest
// bills from the API.
func (s *Service) Bill(ctx context.Context, id string) (domain.Bill, error) {
	if s.archive != nil {
		bill, err := s.archive.GetBill(ctx, id)
		if err == nil {
			return *bill, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("bill_id", id).Msg("archive lookup failed")
		}
	}

	page, err := s.api.ListBills(ctx, domain.BillListQuery{Limit: transactionCountLimit})
	if err != nil {
		return domain.Bill{}, err
	}
	for _, b := range page.Bills {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bill{}, store.ErrNotFound
}

// BillDetail computes the transaction detail figures for a bill.
func (s *Service) BillDetail(bill domain.Bill) analytics.Detail {
	return analytics.DetailTotals(bill)
}

func (s *Service) DownloadBillPDF(ctx context.Context, id string, w io.Writer) (int64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, errors.New("bill id is required")
	}
	return s.api.DownloadBillPDF(ctx, id, w)
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.catalog.Invalidate(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidate failed")
	}
}
