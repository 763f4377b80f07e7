package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/draft"
	"smidi/billing/internal/httpapi"
	"smidi/billing/internal/service"
	"smidi/billing/internal/store"
)

const e2eToken = "opaque-session-token"

type cliHarness struct {
	t   *testing.T
	out *bytes.Buffer
	api *httpapi.API
	dir string
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()

	pct := decimal.NewFromInt(5)
	api := httpapi.New(e2eToken, []domain.Product{
		{ID: "p1", Name: "Urea", Rate: decimal.NewFromInt(100), Quantity: 10, CommissionPercent: &pct},
		{ID: "p2", Name: "DAP", Rate: decimal.NewFromInt(250), Quantity: 4},
	}, httpapi.WithEmployees(domain.Employee{ID: "e1", Name: "Ravi"}))
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	dir := t.TempDir()
	t.Setenv("API_BASE_URL", server.URL)
	t.Setenv("SESSION_FILE", filepath.Join(dir, "session.json"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("API_RATE_LIMIT_RPS", "0")

	return &cliHarness{t: t, out: &bytes.Buffer{}, api: api, dir: dir}
}

func (h *cliHarness) run(args ...string) error {
	h.out.Reset()
	rt := &runtime{out: h.out}
	return newApp(rt).Run(append([]string{"billingctl"}, args...))
}

func (h *cliHarness) mustRun(dest any, args ...string) {
	h.t.Helper()
	if err := h.run(args...); err != nil {
		h.t.Fatalf("billingctl %s: %v", strings.Join(args, " "), err)
	}
	if dest != nil {
		if err := json.Unmarshal(h.out.Bytes(), dest); err != nil {
			h.t.Fatalf("decode output of %s: %v\n%s", strings.Join(args, " "), err, h.out.String())
		}
	}
}

func TestCLI_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	if err := h.run("products"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected errNotLoggedIn, got %v", err)
	}

	h.mustRun(nil, "login", "--token", e2eToken)
	var products []domain.Product
	h.mustRun(&products, "products")
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	h.mustRun(nil, "logout")
	if err := h.run("dashboard"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected errNotLoggedIn after logout, got %v", err)
	}
}

func TestCLI_BillLifecycle(t *testing.T) {
	h := newHarness(t)
	h.mustRun(nil, "login", "--token", e2eToken)

	var created struct {
		Bill   domain.Bill  `json:"bill"`
		Totals draft.Totals `json:"totals"`
	}
	h.mustRun(&created, "bill", "create",
		"--employee", "e1",
		"--customer", "Ramesh=p1:3",
		"--customer", "Suresh=p2:2:3",
		"--notes", "cash")

	if !created.Totals.TotalAmount.Equal(decimal.NewFromInt(800)) || !created.Totals.TotalCommission.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected draft totals %+v", created.Totals)
	}
	if created.Totals.TotalItems != 5 || created.Totals.TotalCustomers != 2 {
		t.Fatalf("unexpected draft counts %+v", created.Totals)
	}
	if !created.Bill.TotalAmount.Equal(decimal.NewFromInt(830)) || created.Bill.EmployeeName != "Ravi" {
		t.Fatalf("unexpected bill %+v", created.Bill)
	}
	if bills := h.api.Bills(); len(bills) != 1 || bills[0].Notes != "cash" {
		t.Fatalf("unexpected stored bills %+v", bills)
	}

	var employees []struct {
		ID           string `json:"_id"`
		Transactions *int   `json:"transactions"`
	}
	h.mustRun(&employees, "employees", "list", "--counts")
	if len(employees) != 1 || employees[0].Transactions == nil || *employees[0].Transactions != 1 {
		t.Fatalf("unexpected employee counts %+v", employees)
	}

	var shown struct {
		Bill   domain.Bill `json:"bill"`
		Detail struct {
			FinalAmount decimal.Decimal `json:"finalAmount"`
		} `json:"detail"`
	}
	h.mustRun(&shown, "bills", "show", "--id", created.Bill.ID)
	if shown.Bill.ID != created.Bill.ID || !shown.Detail.FinalAmount.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected detail %+v", shown)
	}

	var report struct {
		Total   int           `json:"total"`
		Bills   []domain.Bill `json:"bills"`
		Dealers []string      `json:"dealers"`
	}
	h.mustRun(&report, "bills", "report", "--customer", "suresh", "--from", "not-a-date")
	if report.Total != 1 || len(report.Dealers) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	pdfPath := filepath.Join(h.dir, "bill.pdf")
	h.mustRun(nil, "bills", "pdf", "--id", created.Bill.ID, "--out", pdfPath)
	raw, err := os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(raw, []byte("%PDF-")) {
		t.Fatalf("unexpected pdf file %q err=%v", raw, err)
	}

	var dashboard struct {
		Summary domain.DashboardSummary `json:"summary"`
		Failed  []string                `json:"failed"`
	}
	h.mustRun(&dashboard, "dashboard")
	if dashboard.Summary.TotalTransactions != 1 || len(dashboard.Failed) != 0 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}

	var run store.MirrorRun
	h.mustRun(&run, "mirror", "--pages", "2")
	if run.Bills != 1 || run.Pages != 1 {
		t.Fatalf("unexpected mirror run %+v", run)
	}

	var analytics struct {
		EmployeeStats []struct {
			Name string `json:"name"`
		} `json:"employeeStats"`
	}
	h.mustRun(&analytics, "analytics")
	if len(analytics.EmployeeStats) != 1 || analytics.EmployeeStats[0].Name != "Ravi" {
		t.Fatalf("unexpected analytics %+v", analytics)
	}
}

func TestCLI_BillCreateErrors(t *testing.T) {
	h := newHarness(t)
	h.mustRun(nil, "login", "--token", e2eToken)

	err := h.run("bill", "create", "--customer", "Ramesh=p1:1")
	if !errors.Is(err, service.ErrEmployeeRequired) {
		t.Fatalf("expected ErrEmployeeRequired, got %v", err)
	}

	err = h.run("bill", "create", "--employee", "e1", "--customer", "Ramesh=p2:9")
	if !errors.Is(err, draft.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	err = h.run("bill", "create", "--employee", "e1", "--customer", "=p1:1")
	if !errors.Is(err, draft.ErrValidationFailed) {
		t.Fatalf("expected validation failure for unnamed customer, got %v", err)
	}
	if len(h.api.Bills()) != 0 {
		t.Fatalf("expected no bills saved")
	}

	var dry struct {
		Request domain.CreateBillRequest `json:"request"`
	}
	h.mustRun(&dry, "bill", "create", "--employee", "e1", "--dealer", "Patel Agro", "--customer", "=p1:1:2.5", "--dry-run")
	if dry.Request.Customers[0].CustomerName != "Patel Agro" || !dry.Request.Customers[0].Items[0].CommissionPercent.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected dry-run payload %+v", dry.Request)
	}
	if len(h.api.Bills()) != 0 {
		t.Fatalf("dry run must not save")
	}
}
