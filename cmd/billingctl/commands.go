package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"smidi/billing/internal/analytics"
	"smidi/billing/internal/domain"
	"smidi/billing/internal/draft"
	"smidi/billing/internal/service"
	"smidi/billing/internal/session"
)

const defaultMirrorPages = 10

func commands(rt *runtime) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "Store the API token for later commands",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "token", Usage: "Bearer token issued by the billing API", Required: true, EnvVars: []string{"SMIDI_TOKEN"}},
			},
			Action: rt.login,
		},
		{
			Name:   "logout",
			Usage:  "Forget the stored session",
			Action: rt.logout,
		},
		{
			Name:   "products",
			Usage:  "List the product catalog",
			Before: rt.requireSession,
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "refresh", Usage: "Skip the catalog cache"},
			},
			Action: rt.products,
		},
		{
			Name:   "employees",
			Usage:  "Manage employees",
			Before: rt.requireSession,
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "List employees",
					Flags: []cli.Flag{
						&cli.BoolFlag{Name: "counts", Usage: "Include each employee's transaction count"},
					},
					Action: rt.listEmployees,
				},
				{
					Name:   "add",
					Usage:  "Add an employee",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
					Action: rt.addEmployee,
				},
				{
					Name:  "rename",
					Usage: "Rename an employee",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "id", Required: true},
						&cli.StringFlag{Name: "name", Required: true},
					},
					Action: rt.renameEmployee,
				},
				{
					Name:   "delete",
					Usage:  "Delete an employee",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "id", Required: true}},
					Action: rt.deleteEmployee,
				},
			},
		},
		{
			Name:   "dealers",
			Usage:  "Manage an employee's dealers",
			Before: rt.requireSession,
			Subcommands: []*cli.Command{
				{
					Name:   "list",
					Usage:  "List dealers of an employee",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "employee", Required: true}},
					Action: rt.listDealers,
				},
				{
					Name:  "add",
					Usage: "Add a dealer to an employee",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "employee", Required: true},
						&cli.StringFlag{Name: "name", Required: true},
					},
					Action: rt.addDealer,
				},
				{
					Name:  "rename",
					Usage: "Rename a dealer",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "id", Required: true},
						&cli.StringFlag{Name: "name", Required: true},
					},
					Action: rt.renameDealer,
				},
				{
					Name:   "delete",
					Usage:  "Delete a dealer",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "id", Required: true}},
					Action: rt.deleteDealer,
				},
			},
		},
		{
			Name:   "bill",
			Usage:  "Compose and save bills",
			Before: rt.requireSession,
			Subcommands: []*cli.Command{
				{
					Name:  "create",
					Usage: "Create a bill for one or more customers",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "employee", Usage: "Employee id the bill is recorded under"},
						&cli.StringFlag{Name: "employee-name", Usage: "Employee display name"},
						&cli.StringFlag{Name: "dealer", Usage: "Dealer name used for the first customer"},
						&cli.StringSliceFlag{Name: "customer", Usage: "NAME=PRODUCT:QTY[:PCT],... (repeat per customer)", Required: true},
						&cli.StringFlag{Name: "notes"},
						&cli.BoolFlag{Name: "dry-run", Usage: "Print the totals without saving"},
					},
					Action: rt.createBill,
				},
			},
		},
		{
			Name:   "bills",
			Usage:  "Browse saved bills",
			Before: rt.requireSession,
			Subcommands: []*cli.Command{
				{
					Name:  "report",
					Usage: "Filtered transaction report",
					Flags: []cli.Flag{
						&cli.IntFlag{Name: "page", Value: 1},
						&cli.StringFlag{Name: "customer"},
						&cli.StringFlag{Name: "dealer", Usage: "Employee id filter"},
						&cli.StringFlag{Name: "from", Usage: "Start date, YYYY-MM-DD"},
						&cli.StringFlag{Name: "to", Usage: "End date, YYYY-MM-DD"},
					},
					Action: rt.billsReport,
				},
				{
					Name:   "show",
					Usage:  "Show one bill with its totals",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "id", Required: true}},
					Action: rt.showBill,
				},
				{
					Name:  "pdf",
					Usage: "Download the PDF of a bill",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "id", Required: true},
						&cli.StringFlag{Name: "out", Usage: "Output file, defaults to bill-<id>.pdf"},
					},
					Action: rt.billPDF,
				},
			},
		},
		{
			Name:   "dashboard",
			Usage:  "Summary, recent bills and weekly revenue",
			Before: rt.requireSession,
			Action: rt.dashboard,
		},
		{
			Name:   "analytics",
			Usage:  "Product, revenue, customer and employee analytics",
			Before: rt.requireSession,
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "archive", Usage: "Use the local archive instead of the API"},
			},
			Action: rt.runAnalytics,
		},
		{
			Name:   "mirror",
			Usage:  "Copy bills from the API into the local archive",
			Before: rt.requireSession,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "pages", Value: defaultMirrorPages},
				&cli.BoolFlag{Name: "status", Usage: "Only show the archive status"},
			},
			Action: rt.mirror,
		},
	}
}

func (rt *runtime) login(c *cli.Context) error {
	s := session.Session{LoggedIn: true, Token: strings.TrimSpace(c.String("token"))}
	if s.Token == "" {
		return errors.New("token must not be empty")
	}
	if !s.Valid(time.Now()) {
		return errors.New("token is expired or malformed")
	}
	if err := rt.sessions.Save(c.Context, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	out := map[string]any{"loggedIn": true, "sessionFile": rt.sessions.Path()}
	if exp, ok, _ := s.ExpiresAt(); ok {
		out["expiresAt"] = exp
	}
	return rt.print(out)
}

func (rt *runtime) logout(c *cli.Context) error {
	if err := rt.sessions.Clear(c.Context); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return rt.print(map[string]any{"loggedIn": false})
}

func (rt *runtime) products(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	var (
		products []domain.Product
		err      error
	)
	if c.Bool("refresh") {
		products, err = rt.svc.RefreshProducts(ctx)
	} else {
		products, err = rt.svc.Products(ctx)
	}
	if err != nil {
		return err
	}
	return rt.print(products)
}

type employeeRow struct {
	domain.Employee
	Transactions *int `json:"transactions,omitempty"`
}

func (rt *runtime) listEmployees(c *cli.Context) error {
	requests := 1
	if c.Bool("counts") {
		requests = 2
	}
	ctx, cancel := rt.commandContext(c, requests)
	defer cancel()

	employees, err := rt.svc.Employees(ctx)
	if err != nil {
		return err
	}
	var counts map[string]int
	if c.Bool("counts") {
		counts, err = rt.svc.TransactionCounts(ctx)
		if err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
	}
	rows := make([]employeeRow, 0, len(employees))
	for _, e := range employees {
		row := employeeRow{Employee: e}
		if counts != nil {
			n := counts[e.ID]
			row.Transactions = &n
		}
		rows = append(rows, row)
	}
	return rt.print(rows)
}

func (rt *runtime) addEmployee(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	created, err := rt.svc.AddEmployee(ctx, c.String("name"))
	if err != nil {
		return err
	}
	return rt.print(created)
}

func (rt *runtime) renameEmployee(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	updated, err := rt.svc.RenameEmployee(ctx, c.String("id"), c.String("name"))
	if err != nil {
		return err
	}
	return rt.print(updated)
}

func (rt *runtime) deleteEmployee(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	if err := rt.svc.DeleteEmployee(ctx, c.String("id")); err != nil {
		return err
	}
	return rt.print(map[string]any{"deleted": c.String("id")})
}

func (rt *runtime) listDealers(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	dealers, err := rt.svc.Dealers(ctx, c.String("employee"))
	if err != nil {
		return err
	}
	return rt.print(dealers)
}

func (rt *runtime) addDealer(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	if err := rt.svc.AddDealer(ctx, c.String("employee"), c.String("name")); err != nil {
		return err
	}
	return rt.print(map[string]any{"added": strings.TrimSpace(c.String("name"))})
}

func (rt *runtime) renameDealer(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	if err := rt.svc.RenameDealer(ctx, c.String("id"), c.String("name")); err != nil {
		return err
	}
	return rt.print(map[string]any{"renamed": c.String("id")})
}

func (rt *runtime) deleteDealer(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	if err := rt.svc.DeleteDealer(ctx, c.String("id")); err != nil {
		return err
	}
	return rt.print(map[string]any{"deleted": c.String("id")})
}

func (rt *runtime) createBill(c *cli.Context) error {
	specs := make([]customerSpec, 0, len(c.StringSlice("customer")))
	for _, raw := range c.StringSlice("customer") {
		spec, err := parseCustomer(raw)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	ctx, cancel := rt.commandContext(c, 2)
	defer cancel()

	billing := rt.svc.NewBillingSession(service.SessionParams{
		EmployeeID:   c.String("employee"),
		EmployeeName: c.String("employee-name"),
		DealerName:   c.String("dealer"),
	})
	if err := billing.LoadProducts(ctx); err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	if err := fillDraft(billing.Draft(), specs); err != nil {
		return err
	}
	billing.SetNotes(c.String("notes"))

	totals := billing.Draft().Totals()
	if c.Bool("dry-run") {
		payload, err := billing.Draft().SavePayload(billing.Notes())
		if err != nil {
			return validationFailure(err)
		}
		return rt.print(map[string]any{"totals": totals, "request": payload})
	}

	bill, err := billing.Save(ctx)
	if err != nil {
		return validationFailure(err)
	}
	return rt.print(map[string]any{"bill": bill, "totals": totals})
}

// validationFailure lists the failing fields of a draft validation error.
func validationFailure(err error) error {
	var ve *draft.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	if errors.Is(err, service.ErrEmployeeRequired) {
		return fmt.Errorf("%w (pass --employee)", service.ErrEmployeeRequired)
	}
	lines := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		lines = append(lines, fmt.Sprintf("  %s: %s", f.Field, f.Message))
	}
	return fmt.Errorf("%w:\n%s", draft.ErrValidationFailed, strings.Join(lines, "\n"))
}

func (rt *runtime) billsReport(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 2)
	defer cancel()

	reports := rt.svc.Reports()
	page, err := reports.Load(ctx, service.ReportQuery{
		Page:      c.Int("page"),
		Customer:  c.String("customer"),
		Employee:  c.String("dealer"),
		StartDate: c.String("from"),
		EndDate:   c.String("to"),
	})
	if err != nil {
		return err
	}
	dealers, err := reports.Dealers(ctx)
	if err != nil {
		return err
	}
	return rt.print(map[string]any{
		"page":    page.Page,
		"pages":   page.Pages,
		"total":   page.Total,
		"stats":   page.Stats,
		"bills":   page.Bills,
		"dealers": dealers,
	})
}

func (rt *runtime) showBill(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	bill, err := rt.svc.Bill(ctx, c.String("id"))
	if err != nil {
		return err
	}
	return rt.print(struct {
		Bill   domain.Bill      `json:"bill"`
		Detail analytics.Detail `json:"detail"`
	}{bill, rt.svc.BillDetail(bill)})
}

func (rt *runtime) billPDF(c *cli.Context) error {
	id := strings.TrimSpace(c.String("id"))
	path := c.String("out")
	if path == "" {
		path = "bill-" + id + ".pdf"
	}

	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := rt.svc.DownloadBillPDF(ctx, id, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return rt.print(map[string]any{"id": id, "path": path, "bytes": n})
}

func (rt *runtime) dashboard(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	view := rt.svc.Dashboard(ctx)
	return rt.print(map[string]any{
		"summary": view.Summary,
		"recent":  view.Recent,
		"weekly":  view.Weekly,
		"failed":  view.Failed,
	})
}

func (rt *runtime) runAnalytics(c *cli.Context) error {
	ctx, cancel := rt.commandContext(c, 1)
	defer cancel()

	source := service.SourceAPI
	if c.Bool("archive") {
		source = service.SourceArchive
	}
	report, err := rt.svc.Analytics(ctx, source)
	if err != nil {
		return err
	}
	return rt.print(report)
}

func (rt *runtime) mirror(c *cli.Context) error {
	pages := c.Int("pages")
	ctx, cancel := rt.commandContext(c, pages)
	defer cancel()

	if !c.Bool("status") {
		run, err := rt.svc.Mirror(ctx, pages)
		if err != nil {
			return err
		}
		if rt.cfg.DatabaseURL == "" {
			return rt.print(run)
		}
	}
	status, err := rt.svc.ArchiveStatus(ctx)
	if err != nil {
		return err
	}
	return rt.print(status)
}
