package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"smidi/billing/internal/domain"
)

// envelope is the {success, message, data} wrapper used by most endpoints.
type envelope[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

func (e envelope[T]) unwrap(what string) (T, error) {
	var zero T
	if e.Success == nil {
		return zero, fmt.Errorf("%w: %s: missing success flag", ErrDecode, what)
	}
	if !*e.Success {
		return zero, &APIError{Status: http.StatusOK, Message: e.Message}
	}
	if e.Data == nil {
		return zero, fmt.Errorf("%w: %s: missing data", ErrDecode, what)
	}
	return *e.Data, nil
}

type ack struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (a ack) check(what string) error {
	if a.Success == nil {
		return fmt.Errorf("%w: %s: missing success flag", ErrDecode, what)
	}
	if !*a.Success {
		return &APIError{Status: http.StatusOK, Message: a.Message}
	}
	return nil
}

type dealersEnvelope[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Dealers *[]T   `json:"dealers"`
}

func (e dealersEnvelope[T]) unwrap(what string) ([]T, error) {
	if err := (ack{Success: e.Success, Message: e.Message}).check(what); err != nil {
		return nil, err
	}
	if e.Dealers == nil {
		return nil, fmt.Errorf("%w: %s: missing dealers", ErrDecode, what)
	}
	return *e.Dealers, nil
}

type filterEnvelope struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Data    *[]domain.Bill `json:"data"`
	Total   int            `json:"total"`
	Pages   int            `json:"pages"`
}

// ListProducts returns GET /api/products, a bare JSON array.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/products"}, &products); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		out = append(out, p.Normalize())
	}
	return out, nil
}

func (c *Client) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	var env envelope[[]domain.Employee]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/employees"}, &env); err != nil {
		return nil, err
	}
	return env.unwrap("employees")
}

func (c *Client) CreateEmployee(ctx context.Context, name string) (domain.Employee, error) {
	var env envelope[domain.Employee]
	req := request{method: http.MethodPost, path: "/api/employees", body: domain.EmployeeRequest{Name: name}}
	if err := c.doJSON(ctx, req, &env); err != nil {
		return domain.Employee{}, err
	}
	return env.unwrap("create employee")
}

func (c *Client) UpdateEmployee(ctx context.Context, id string, name string) (domain.Employee, error) {
	var env envelope[domain.Employee]
	req := request{method: http.MethodPut, path: "/api/employees/" + url.PathEscape(id), body: domain.EmployeeRequest{Name: name}}
	if err := c.doJSON(ctx, req, &env); err != nil {
		return domain.Employee{}, err
	}
	return env.unwrap("update employee")
}

func (c *Client) DeleteEmployee(ctx context.Context, id string) error {
	var resp ack
	if err := c.doJSON(ctx, request{method: http.MethodDelete, path: "/api/employees/" + url.PathEscape(id)}, &resp); err != nil {
		return err
	}
	return resp.check("delete employee")
}

func (c *Client) ListDealers(ctx context.Context, employeeID string) ([]domain.Dealer, error) {
	var env dealersEnvelope[domain.Dealer]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/dealers/" + url.PathEscape(employeeID)}, &env); err != nil {
		return nil, err
	}
	return env.unwrap("dealers")
}

func (c *Client) CreateDealer(ctx context.Context, employeeID string, name string) error {
	var resp ack
	req := request{method: http.MethodPost, path: "/api/dealers", body: domain.DealerCreateRequest{Name: name, EmployeeID: employeeID}}
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return err
	}
	return resp.check("create dealer")
}

func (c *Client) UpdateDealer(ctx context.Context, id string, name string) error {
	var resp ack
	req := request{method: http.MethodPut, path: "/api/dealers/" + url.PathEscape(id), body: domain.DealerUpdateRequest{Name: name}}
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return err
	}
	return resp.check("update dealer")
}

func (c *Client) DeleteDealer(ctx context.Context, id string) error {
	var resp ack
	if err := c.doJSON(ctx, request{method: http.MethodDelete, path: "/api/dealers/" + url.PathEscape(id)}, &resp); err != nil {
		return err
	}
	return resp.check("delete dealer")
}

// ListBills returns GET /api/bills, used by dashboard, analytics and counts.
func (c *Client) ListBills(ctx context.Context, q domain.BillListQuery) (domain.BillPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.StartDate != "" {
		query.Set("startDate", q.StartDate)
	}

	var env envelope[domain.BillPage]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/bills", query: query}, &env); err != nil {
		return domain.BillPage{}, err
	}
	page, err := env.unwrap("bills")
	if err != nil {
		return domain.BillPage{}, err
	}
	if page.Bills == nil {
		return domain.BillPage{}, fmt.Errorf("%w: bills: missing bills", ErrDecode)
	}
	page.Bills = normalizeBills(page.Bills)
	return page, nil
}

// FilterBills returns GET /api/bills/filter for the reports screen.
func (c *Client) FilterBills(ctx context.Context, q domain.BillFilterQuery) (domain.BillPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if v := strings.TrimSpace(q.Customer); v != "" {
		query.Set("customer", v)
	}
	if v := strings.TrimSpace(q.Dealer); v != "" {
		query.Set("dealer", v)
	}
	if q.StartDate != "" {
		query.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		query.Set("endDate", q.EndDate)
	}

	var env filterEnvelope
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/bills/filter", query: query}, &env); err != nil {
		return domain.BillPage{}, err
	}
	if err := (ack{Success: env.Success, Message: env.Message}).check("bill filter"); err != nil {
		return domain.BillPage{}, err
	}
	if env.Data == nil {
		return domain.BillPage{}, fmt.Errorf("%w: bill filter: missing data", ErrDecode)
	}

	page := domain.BillPage{Bills: normalizeBills(*env.Data), Total: env.Total, Pages: env.Pages}
	if page.Pages < 1 {
		page.Pages = 1
	}
	if page.Total == 0 {
		page.Total = len(page.Bills)
	}
	return page, nil
}

// ListBillDealers returns the distinct customer names seen on bills.
func (c *Client) ListBillDealers(ctx context.Context) ([]string, error) {
	var env dealersEnvelope[string]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/bills/dealers"}, &env); err != nil {
		return nil, err
	}
	return env.unwrap("bill dealers")
}

func (c *Client) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	var env envelope[domain.DashboardSummary]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/dashboard"}, &env); err != nil {
		return domain.DashboardSummary{}, err
	}
	return env.unwrap("dashboard")
}

// CreateBill submits a bill. The idempotency key lets a retried save reach
// the API twice without creating two bills.
func (c *Client) CreateBill(ctx context.Context, req domain.CreateBillRequest, idempotencyKey string) (domain.Bill, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var env envelope[domain.Bill]
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/api/bills", body: req, headers: headers}, &env); err != nil {
		return domain.Bill{}, err
	}
	bill, err := env.unwrap("create bill")
	if err != nil {
		return domain.Bill{}, err
	}
	return bill.Normalize(), nil
}

func (c *Client) BillPDFURL(id string) string {
	return c.endpoint("/api/bills/"+url.PathEscape(id)+"/pdf", nil)
}

// DownloadBillPDF streams the rendered invoice into w.
func (c *Client) DownloadBillPDF(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, request{
		method:  http.MethodGet,
		path:    "/api/bills/" + url.PathEscape(id) + "/pdf",
		headers: map[string]string{"Accept": "application/pdf"},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/pdf") {
		return 0, fmt.Errorf("%w: bill pdf: content type %q", ErrDecode, ct)
	}
	return io.Copy(w, resp.Body)
}

func normalizeBills(bills []domain.Bill) []domain.Bill {
	out := make([]domain.Bill, 0, len(bills))
	for _, b := range bills {
		out = append(out, b.Normalize())
	}
	return out
}
