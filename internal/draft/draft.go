// Package draft holds the in-memory composition of a multi-customer bill
// before it is submitted to the billing API.
//
// A Draft has a single writer. It performs no I/O; saving is the caller's job
// using the request built by SavePayload.
package draft

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type LineItem struct {
	ProductID         string
	ProductName       string
	Rate              decimal.Decimal
	Stock             int
	Quantity          int
	CommissionPercent decimal.Decimal
	ItemAmount        decimal.Decimal
	CommissionAmount  decimal.Decimal
	LineTotal         decimal.Decimal
}

type Customer struct {
	ID           int
	CustomerName string
	Items        []LineItem
	Subtotal     decimal.Decimal
}

// ItemsTotal is the customer's subtotal without commission.
func (c Customer) ItemsTotal() decimal.Decimal {
	return c.Subtotal.Sub(c.CommissionTotal())
}

func (c Customer) CommissionTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.CommissionAmount)
	}
	return total
}

type Employee struct {
	ID   string
	Name string
}

type Totals struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TotalItems      int             `json:"totalItems"`
	TotalCustomers  int             `json:"totalCustomers"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
}

type Draft struct {
	catalog        map[string]domain.Product
	customers      []Customer
	active         int
	employee       Employee
	pinnedEmployee bool
	defaultName    string
}

type Option func(*Draft)

// WithEmployee pins the employee for every draft this value produces,
// including after Reset.
func WithEmployee(id string, name string) Option {
	return func(d *Draft) {
		d.employee = Employee{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
		d.pinnedEmployee = d.employee.ID != ""
	}
}

// WithDefaultCustomerName pre-fills the first customer's name, used when
// billing starts from a dealer.
func WithDefaultCustomerName(name string) Option {
	return func(d *Draft) {
		d.defaultName = name
	}
}

func New(catalog []domain.Product, opts ...Option) *Draft {
	d := &Draft{}
	for _, opt := range opts {
		opt(d)
	}
	d.ReplaceCatalog(catalog)
	d.resetCustomers()
	return d
}

// Reset discards all customers and items. The employee is cleared unless
// it was pinned with WithEmployee.
func (d *Draft) Reset() {
	d.resetCustomers()
	if !d.pinnedEmployee {
		d.employee = Employee{}
	}
}

func (d *Draft) resetCustomers() {
	d.customers = []Customer{{ID: 1, CustomerName: d.defaultName, Subtotal: decimal.Zero}}
	d.active = 0
}

// ReplaceCatalog swaps the product list used to validate AddItem. Items
// already in the draft keep their snapshot.
func (d *Draft) ReplaceCatalog(products []domain.Product) {
	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p = p.Normalize()
		if p.ID == "" {
			continue
		}
		catalog[p.ID] = p
	}
	d.catalog = catalog
}

func (d *Draft) Product(id string) (domain.Product, bool) {
	p, ok := d.catalog[id]
	return p, ok
}

// SetEmployee assigns the employee once. Assigning a different employee
// afterwards fails with ErrEmployeeLocked.
func (d *Draft) SetEmployee(id string, name string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Fields: []FieldError{{Field: "employeeId", Message: "employee is required"}}}
	}
	if d.employee.ID != "" && d.employee.ID != id {
		return ErrEmployeeLocked
	}
	d.employee = Employee{ID: id, Name: strings.TrimSpace(name)}
	return nil
}

func (d *Draft) Employee() Employee {
	return d.employee
}

func (d *Draft) AddCustomer() Customer {
	maxID := 0
	for _, c := range d.customers {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	customer := Customer{ID: maxID + 1, Subtotal: decimal.Zero}
	d.customers = append(d.customers, customer)
	d.active = len(d.customers) - 1
	return customer
}

func (d *Draft) RemoveCustomer(index int) error {
	if len(d.customers) <= 1 {
		return ErrCannotRemoveLastCustomer
	}
	if index < 0 || index >= len(d.customers) {
		return ErrCustomerNotFound
	}

	d.customers = append(d.customers[:index], d.customers[index+1:]...)
	if d.active >= index {
		d.active = max(0, index-1)
	}
	if d.active > len(d.customers)-1 {
		d.active = len(d.customers) - 1
	}
	return nil
}

// RenameCustomer does not validate; blank names are rejected at save time.
func (d *Draft) RenameCustomer(index int, name string) error {
	if index < 0 || index >= len(d.customers) {
		return ErrCustomerNotFound
	}
	d.customers[index].CustomerName = name
	return nil
}

func (d *Draft) SelectCustomer(index int) error {
	if index < 0 || index >= len(d.customers) {
		return ErrCustomerNotFound
	}
	d.active = index
	return nil
}

func (d *Draft) ActiveIndex() int {
	return d.active
}

func (d *Draft) Active() Customer {
	return copyCustomer(d.customers[d.active])
}

// Customers returns a copy of the customer list.
func (d *Draft) Customers() []Customer {
	out := make([]Customer, 0, len(d.customers))
	for _, c := range d.customers {
		out = append(out, copyCustomer(c))
	}
	return out
}

// AddItem appends a line to the active customer. A nil override uses the
// product's commission percent. A zero quantity is treated as no quantity
// entered and reports ErrMissingSelection; negative quantities report
// ErrInvalidQuantity.
func (d *Draft) AddItem(productID string, quantity int, override *decimal.Decimal) (LineItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || quantity == 0 {
		return LineItem{}, ErrMissingSelection
	}

	product, ok := d.catalog[productID]
	if !ok {
		return LineItem{}, ErrProductNotFound
	}
	if quantity > product.Quantity {
		return LineItem{}, fmt.Errorf("%w: only %d bags available", ErrInsufficientStock, product.Quantity)
	}
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}

	percent := product.Commission()
	if override != nil {
		percent = *override
	}

	item := newLineItem(product, quantity, percent)
	customer := &d.customers[d.active]
	customer.Items = append(customer.Items, item)
	customer.Subtotal = customer.Subtotal.Add(item.LineTotal)
	return item, nil
}

func newLineItem(product domain.Product, quantity int, percent decimal.Decimal) LineItem {
	itemAmount := decimal.NewFromInt(int64(quantity)).Mul(product.Rate)
	commissionAmount := itemAmount.Mul(percent).Div(hundred)
	return LineItem{
		ProductID:         product.ID,
		ProductName:       product.Name,
		Rate:              product.Rate,
		Stock:             product.Quantity,
		Quantity:          quantity,
		CommissionPercent: percent,
		ItemAmount:        itemAmount,
		CommissionAmount:  commissionAmount,
		LineTotal:         itemAmount.Add(commissionAmount),
	}
}

// RemoveItem is a no-op when either index is out of range.
func (d *Draft) RemoveItem(customerIndex int, itemIndex int) {
	if customerIndex < 0 || customerIndex >= len(d.customers) {
		return
	}
	customer := &d.customers[customerIndex]
	if itemIndex < 0 || itemIndex >= len(customer.Items) {
		return
	}

	removed := customer.Items[itemIndex]
	customer.Items = append(customer.Items[:itemIndex], customer.Items[itemIndex+1:]...)
	customer.Subtotal = customer.Subtotal.Sub(removed.LineTotal)
}

func (d *Draft) Totals() Totals {
	return ComputeTotals(d.customers)
}

// ComputeTotals aggregates a customer list. Customers without items
// contribute nothing beyond their count.
func ComputeTotals(customers []Customer) Totals {
	totals := Totals{
		TotalAmount:     decimal.Zero,
		TotalCommission: decimal.Zero,
		TotalCustomers:  len(customers),
	}
	for _, c := range customers {
		commission := c.CommissionTotal()
		totals.TotalAmount = totals.TotalAmount.Add(c.Subtotal.Sub(commission))
		totals.TotalCommission = totals.TotalCommission.Add(commission)
		for _, item := range c.Items {
			totals.TotalItems += item.Quantity
		}
	}
	return totals
}

// SavePayload validates the draft and builds the create-bill request.
// Computed amounts are not sent.
func (d *Draft) SavePayload(notes string) (domain.CreateBillRequest, error) {
	var fields []FieldError
	for i, c := range d.customers {
		if strings.TrimSpace(c.CustomerName) == "" {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("customers[%d].customerName", i),
				Message: "customer name is required",
			})
		}
		if len(c.Items) == 0 {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("customers[%d].items", i),
				Message: "at least one item is required",
			})
		}
	}
	if d.employee.ID == "" {
		fields = append(fields, FieldError{Field: "employeeId", Message: "employee is required"})
	}
	if len(fields) > 0 {
		return domain.CreateBillRequest{}, &ValidationError{Fields: fields}
	}

	req := domain.CreateBillRequest{
		EmployeeID: d.employee.ID,
		Customers:  make([]domain.CreateBillCustomer, 0, len(d.customers)),
		Notes:      strings.TrimSpace(notes),
	}
	for _, c := range d.customers {
		customer := domain.CreateBillCustomer{
			CustomerName: strings.TrimSpace(c.CustomerName),
			Items:        make([]domain.CreateBillItem, 0, len(c.Items)),
		}
		for _, item := range c.Items {
			customer.Items = append(customer.Items, domain.CreateBillItem{
				ProductID:         item.ProductID,
				Quantity:          item.Quantity,
				CommissionPercent: item.CommissionPercent,
			})
		}
		req.Customers = append(req.Customers, customer)
	}
	return req, nil
}

func copyCustomer(c Customer) Customer {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}
