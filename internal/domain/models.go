package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCommissionPercent applies to products that carry no commission of their own.
var DefaultCommissionPercent = decimal.NewFromInt(3)

const (
	UnknownCustomerName = "Unknown Customer"
	UnknownEmployeeName = "Unknown Employee"
)

type Product struct {
	ID                string           `json:"_id"`
	Name              string           `json:"name"`
	Rate              decimal.Decimal  `json:"rate"`
	Quantity          int              `json:"quantity"`
	CommissionPercent *decimal.Decimal `json:"commissionPercent,omitempty"`
}

// Normalize resolves the product's commission percent once, at the boundary.
func (p Product) Normalize() Product {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.CommissionPercent == nil {
		pct := DefaultCommissionPercent
		p.CommissionPercent = &pct
	}
	return p
}

// Commission returns the configured percent, or the default when none is set.
func (p Product) Commission() decimal.Decimal {
	if p.CommissionPercent == nil {
		return DefaultCommissionPercent
	}
	return *p.CommissionPercent
}

type Employee struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type EmployeeRequest struct {
	Name string `json:"name"`
}

type Dealer struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId"`
}

type DealerCreateRequest struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId"`
}

type DealerUpdateRequest struct {
	Name string `json:"name"`
}

// BillItem is a persisted line item as returned by the API.
type BillItem struct {
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName,omitempty"`
	Quantity          int             `json:"quantity"`
	Rate              decimal.Decimal `json:"rate"`
	ItemAmount        decimal.Decimal `json:"itemAmount"`
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
	CommissionAmount  decimal.Decimal `json:"commissionAmount"`
}

type BillCustomer struct {
	CustomerName string          `json:"customerName"`
	Items        []BillItem      `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Bill is a persisted invoice. Items and CustomerName are only set on
// legacy single-customer bills created before multi-customer billing.
type Bill struct {
	ID              string          `json:"_id"`
	BillNumber      string          `json:"billNumber,omitempty"`
	EmployeeID      string          `json:"employeeId"`
	EmployeeName    string          `json:"employeeName"`
	Customers       []BillCustomer  `json:"customers,omitempty"`
	CustomerName    string          `json:"customerName,omitempty"`
	Items           []BillItem      `json:"items,omitempty"`
	TotalItems      int             `json:"totalItems,omitempty"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	FinalAmount     decimal.Decimal `json:"finalAmount"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Normalize fills display defaults for names left blank by the API.
func (b Bill) Normalize() Bill {
	if strings.TrimSpace(b.EmployeeName) == "" {
		b.EmployeeName = UnknownEmployeeName
	}
	for i := range b.Customers {
		if strings.TrimSpace(b.Customers[i].CustomerName) == "" {
			b.Customers[i].CustomerName = UnknownCustomerName
		}
	}
	if len(b.Customers) == 0 && strings.TrimSpace(b.CustomerName) == "" {
		b.CustomerName = UnknownCustomerName
	}
	return b
}

// IsLegacy reports whether the bill predates the customers array.
func (b Bill) IsLegacy() bool {
	return len(b.Customers) == 0 && len(b.Items) > 0
}

// Amount is the revenue figure used by the dashboard and analytics:
// the final amount when present, otherwise the total amount.
func (b Bill) Amount() decimal.Decimal {
	if !b.FinalAmount.IsZero() {
		return b.FinalAmount
	}
	return b.TotalAmount
}

// ReportAmount is the figure used by the reports screen, which prefers
// the total amount over the final amount.
func (b Bill) ReportAmount() decimal.Decimal {
	if !b.TotalAmount.IsZero() {
		return b.TotalAmount
	}
	return b.FinalAmount
}

// CustomerNames joins customer names for list rows.
func (b Bill) CustomerNames() string {
	if len(b.Customers) == 0 {
		if b.CustomerName == "" {
			return "Walk-in Customer"
		}
		return b.CustomerName
	}
	names := make([]string, 0, len(b.Customers))
	for _, c := range b.Customers {
		names = append(names, c.CustomerName)
	}
	return strings.Join(names, ", ")
}

func (b Bill) CustomerCount() int {
	if len(b.Customers) == 0 {
		return 1
	}
	return len(b.Customers)
}

type CreateBillItem struct {
	ProductID         string          `json:"productId"`
	Quantity          int             `json:"quantity"`
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
}

// MarshalJSON writes the commission percent as a bare JSON number with
// every digit the draft priced with.
func (i CreateBillItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID         string      `json:"productId"`
		Quantity          int         `json:"quantity"`
		CommissionPercent json.Number `json:"commissionPercent"`
	}{
		ProductID:         i.ProductID,
		Quantity:          i.Quantity,
		CommissionPercent: json.Number(i.CommissionPercent.String()),
	})
}

type CreateBillCustomer struct {
	CustomerName string           `json:"customerName"`
	Items        []CreateBillItem `json:"items"`
}

// CreateBillRequest is the POST /api/bills body. Amounts are deliberately
// absent: the API recomputes them from current product rates.
type CreateBillRequest struct {
	EmployeeID string               `json:"employeeId"`
	Customers  []CreateBillCustomer `json:"customers"`
	Notes      string               `json:"notes"`
}

// Equal reports whether two requests would create the same bill. Percents
// compare by value, so 3 and 3.0 match.
func (r CreateBillRequest) Equal(o CreateBillRequest) bool {
	if r.EmployeeID != o.EmployeeID || r.Notes != o.Notes || len(r.Customers) != len(o.Customers) {
		return false
	}
	for i, c := range r.Customers {
		other := o.Customers[i]
		if c.CustomerName != other.CustomerName || len(c.Items) != len(other.Items) {
			return false
		}
		for j, item := range c.Items {
			got := other.Items[j]
			if item.ProductID != got.ProductID || item.Quantity != got.Quantity || !item.CommissionPercent.Equal(got.CommissionPercent) {
				return false
			}
		}
	}
	return true
}

type BillListQuery struct {
	Page      int
	Limit     int
	StartDate string
}

type BillFilterQuery struct {
	Page      int
	Limit     int
	Customer  string
	Dealer    string
	StartDate string
	EndDate   string
}

type BillPage struct {
	Bills []Bill `json:"bills"`
	Total int    `json:"total"`
	Pages int    `json:"pages"`
}

type DashboardSummary struct {
	TotalProducts     int             `json:"totalProducts"`
	InventoryValue    decimal.Decimal `json:"inventoryValue"`
	TotalTransactions int             `json:"totalTransactions"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	TotalEmployees    int             `json:"totalEmployees"`
}
