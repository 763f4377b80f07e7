// Package httpapi serves an in-memory billing API with the same routes and
// response envelopes as the remote Smidi service. The CLI end-to-end tests
// and the client tests run against it.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/xid"
)

var (
	errMissingBearer = errors.New("missing bearer token")
	errBadToken      = errors.New("invalid token")
	errNotFound      = errors.New("not found")
)

type API struct {
	token string
	now   func() time.Time

	mu        sync.Mutex
	products  []domain.Product
	employees []domain.Employee
	dealers   []domain.Dealer
	bills     []domain.Bill
	byKey     map[string]domain.Bill
}

type Option func(*API)

func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

func WithEmployees(employees ...domain.Employee) Option {
	return func(a *API) {
		a.employees = append(a.employees, employees...)
	}
}

func WithBills(bills ...domain.Bill) Option {
	return func(a *API) {
		a.bills = append(a.bills, bills...)
	}
}

// New serves products as the catalog. Every route requires
// "Authorization: Bearer <token>".
func New(token string, products []domain.Product, opts ...Option) *API {
	a := &API{
		token:    token,
		now:      time.Now,
		products: append([]domain.Product(nil), products...),
		byKey:    make(map[string]domain.Bill),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/employees", a.requireAuth(a.handleEmployees))
	mux.HandleFunc("/api/employees/", a.requireAuth(a.handleEmployeeActions))
	mux.HandleFunc("/api/dealers", a.requireAuth(a.handleDealers))
	mux.HandleFunc("/api/dealers/", a.requireAuth(a.handleDealerActions))
	mux.HandleFunc("/api/bills", a.requireAuth(a.handleBills))
	mux.HandleFunc("/api/bills/filter", a.requireAuth(a.handleBillFilter))
	mux.HandleFunc("/api/bills/dealers", a.requireAuth(a.handleBillDealers))
	mux.HandleFunc("/api/bills/", a.requireAuth(a.handleBillPDF))
	mux.HandleFunc("/api/dashboard", a.requireAuth(a.handleDashboard))

	return mux
}

// Bills returns a copy of the stored bills, oldest first.
func (a *API) Bills() []domain.Bill {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Bill(nil), a.bills...)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errMissingBearer)
			return
		}
		if strings.TrimSpace(authorization[len("Bearer "):]) != a.token {
			writeError(w, http.StatusUnauthorized, errBadToken)
			return
		}
		next(w, r)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	a.mu.Lock()
	products := append([]domain.Product(nil), a.products...)
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.mu.Lock()
		employees := append([]domain.Employee{}, a.employees...)
		a.mu.Unlock()
		writeData(w, http.StatusOK, employees)
	case http.MethodPost:
		var req domain.EmployeeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, errors.New("name is required"))
			return
		}
		a.mu.Lock()
		created := a.now().UTC()
		e := domain.Employee{ID: a.nextID("emp"), Name: strings.TrimSpace(req.Name), CreatedAt: &created}
		a.employees = append(a.employees, e)
		a.mu.Unlock()
		writeData(w, http.StatusCreated, e)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEmployeeActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/employees/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := -1
	for i := range a.employees {
		if a.employees[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("employee %s %w", id, errNotFound))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.EmployeeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.employees[idx].Name = strings.TrimSpace(req.Name)
		writeData(w, http.StatusOK, a.employees[idx])
	case http.MethodDelete:
		a.employees = append(a.employees[:idx], a.employees[idx+1:]...)
		writeAck(w, "employee deleted")
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDealers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.DealerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.EmployeeID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("name and employeeId are required"))
		return
	}

	a.mu.Lock()
	a.dealers = append(a.dealers, domain.Dealer{ID: a.nextID("dlr"), Name: strings.TrimSpace(req.Name), EmployeeID: req.EmployeeID})
	a.mu.Unlock()
	writeAck(w, "dealer added")
}

// handleDealerActions serves GET /api/dealers/{employeeId} and
// PUT|DELETE /api/dealers/{dealerId}.
func (a *API) handleDealerActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/dealers/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Method == http.MethodGet {
		dealers := []domain.Dealer{}
		for _, d := range a.dealers {
			if d.EmployeeID == id {
				dealers = append(dealers, d)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "dealers": dealers})
		return
	}

	idx := -1
	for i := range a.dealers {
		if a.dealers[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("dealer %s %w", id, errNotFound))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.DealerUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.dealers[idx].Name = strings.TrimSpace(req.Name)
		writeAck(w, "dealer updated")
	case http.MethodDelete:
		a.dealers = append(a.dealers[:idx], a.dealers[idx+1:]...)
		writeAck(w, "dealer deleted")
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBills(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listBills(w, r)
	case http.MethodPost:
		a.createBill(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) listBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePositive(q.Get("page"), 1)
	limit := parsePositive(q.Get("limit"), 10)

	var from time.Time
	if raw := q.Get("startDate"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid startDate: %w", err))
			return
		}
		from = parsed
	}

	a.mu.Lock()
	bills := a.newestFirst(func(b domain.Bill) bool { return from.IsZero() || !b.CreatedAt.Before(from) })
	a.mu.Unlock()

	pageBills, pages := paginate(bills, page, limit)
	writeData(w, http.StatusOK, domain.BillPage{Bills: pageBills, Total: len(bills), Pages: pages})
}

func (a *API) createBill(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.byKey[key]; ok && key != "" {
		writeData(w, http.StatusOK, existing)
		return
	}

	bill, err := a.buildBill(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, c := range bill.Customers {
		for _, item := range c.Items {
			a.adjustStock(item.ProductID, -item.Quantity)
		}
	}
	a.bills = append(a.bills, bill)
	if key != "" {
		a.byKey[key] = bill
	}
	writeData(w, http.StatusCreated, bill)
}

// buildBill prices the request from current product rates. Callers hold a.mu.
func (a *API) buildBill(req domain.CreateBillRequest) (domain.Bill, error) {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return domain.Bill{}, errors.New("employeeId is required")
	}
	if len(req.Customers) == 0 {
		return domain.Bill{}, errors.New("at least one customer is required")
	}

	bill := domain.Bill{
		ID:              a.nextID("bill"),
		EmployeeID:      req.EmployeeID,
		EmployeeName:    a.employeeName(req.EmployeeID),
		Notes:           req.Notes,
		TotalAmount:     decimal.Zero,
		TotalCommission: decimal.Zero,
		CreatedAt:       a.now().UTC(),
	}
	bill.BillNumber = fmt.Sprintf("SF-%05d", len(a.bills)+1)

	needed := map[string]int{}
	for _, c := range req.Customers {
		if strings.TrimSpace(c.CustomerName) == "" || len(c.Items) == 0 {
			return domain.Bill{}, errors.New("every customer needs a name and at least one item")
		}
		customer := domain.BillCustomer{CustomerName: c.CustomerName, Subtotal: decimal.Zero}
		for _, in := range c.Items {
			product, ok := a.product(in.ProductID)
			if !ok {
				return domain.Bill{}, fmt.Errorf("product %s not found", in.ProductID)
			}
			needed[in.ProductID] += in.Quantity
			if in.Quantity <= 0 || needed[in.ProductID] > product.Quantity {
				return domain.Bill{}, fmt.Errorf("insufficient stock for %s", product.Name)
			}

			pct := in.CommissionPercent
			amount := decimal.NewFromInt(int64(in.Quantity)).Mul(product.Rate)
			commission := amount.Mul(pct).Div(decimal.NewFromInt(100))
			customer.Items = append(customer.Items, domain.BillItem{
				ProductID:         product.ID,
				ProductName:       product.Name,
				Quantity:          in.Quantity,
				Rate:              product.Rate,
				ItemAmount:        amount,
				CommissionPercent: pct,
				CommissionAmount:  commission,
			})
			customer.Subtotal = customer.Subtotal.Add(amount).Add(commission)
			bill.TotalCommission = bill.TotalCommission.Add(commission)
			bill.TotalItems += in.Quantity
		}
		bill.TotalAmount = bill.TotalAmount.Add(customer.Subtotal)
		bill.Customers = append(bill.Customers, customer)
	}
	bill.FinalAmount = bill.TotalAmount
	return bill, nil
}

func (a *API) handleBillFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	page := parsePositive(q.Get("page"), 1)
	limit := parsePositive(q.Get("limit"), 10)
	customer := strings.ToLower(strings.TrimSpace(q.Get("customer")))
	dealer := strings.TrimSpace(q.Get("dealer"))
	from, _ := time.Parse(time.DateOnly, q.Get("startDate"))
	to, _ := time.Parse(time.DateOnly, q.Get("endDate"))

	a.mu.Lock()
	bills := a.newestFirst(func(b domain.Bill) bool {
		if customer != "" && !strings.Contains(strings.ToLower(b.CustomerNames()), customer) {
			return false
		}
		if dealer != "" && b.EmployeeID != dealer {
			return false
		}
		if !from.IsZero() && b.CreatedAt.Before(from) {
			return false
		}
		if !to.IsZero() && !b.CreatedAt.Before(to.AddDate(0, 0, 1)) {
			return false
		}
		return true
	})
	a.mu.Unlock()

	pageBills, pages := paginate(bills, page, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    pageBills,
		"total":   len(bills),
		"pages":   pages,
	})
}

func (a *API) handleBillDealers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	a.mu.Lock()
	seen := map[string]struct{}{}
	for _, b := range a.bills {
		for _, c := range b.Customers {
			seen[c.CustomerName] = struct{}{}
		}
	}
	a.mu.Unlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "dealers": names})
}

func (a *API) handleBillPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/bills/")
	id, ok := strings.CutSuffix(rest, "/pdf")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}

	a.mu.Lock()
	var found *domain.Bill
	for i := range a.bills {
		if a.bills[i].ID == id {
			b := a.bills[i]
			found = &b
			break
		}
	}
	a.mu.Unlock()
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("bill %s %w", id, errNotFound))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%%PDF-1.4\n%% bill %s total %s\n%%%%EOF\n", found.ID, found.TotalAmount)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	a.mu.Lock()
	summary := domain.DashboardSummary{
		TotalProducts:     len(a.products),
		InventoryValue:    decimal.Zero,
		TotalTransactions: len(a.bills),
		TotalRevenue:      decimal.Zero,
		TotalEmployees:    len(a.employees),
	}
	for _, p := range a.products {
		summary.InventoryValue = summary.InventoryValue.Add(p.Rate.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	for _, b := range a.bills {
		summary.TotalRevenue = summary.TotalRevenue.Add(b.Amount())
	}
	a.mu.Unlock()
	writeData(w, http.StatusOK, summary)
}

func (a *API) newestFirst(keep func(domain.Bill) bool) []domain.Bill {
	out := make([]domain.Bill, 0, len(a.bills))
	for _, b := range a.bills {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (a *API) product(id string) (domain.Product, bool) {
	for _, p := range a.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (a *API) adjustStock(id string, delta int) {
	for i := range a.products {
		if a.products[i].ID == id {
			a.products[i].Quantity += delta
			return
		}
	}
}

func (a *API) employeeName(id string) string {
	for _, e := range a.employees {
		if e.ID == id {
			return e.Name
		}
	}
	return ""
}

func (a *API) nextID(prefix string) string {
	return xid.New(prefix)
}

func paginate(bills []domain.Bill, page int, limit int) ([]domain.Bill, int) {
	pages := len(bills) / limit
	if len(bills)%limit != 0 {
		pages++
	}
	pages = max(pages, 1)
	if page > pages {
		return []domain.Bill{}, pages
	}
	start := (page - 1) * limit
	end := start + min(limit, len(bills)-start)
	return append([]domain.Bill{}, bills[start:end]...), pages
}

func parsePositive(raw string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeAck(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
