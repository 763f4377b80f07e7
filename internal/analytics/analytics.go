// Package analytics aggregates bills into the figures shown on the
// dashboard, reports, analytics and transaction detail screens.
//
// Every function is pure. Legacy single-customer bills, which carry items
// and a customer name at the top level, are accepted everywhere.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/domain"
)

const (
	topN             = 5
	productNameLimit = 15
	monthsTracked    = 6
	daysTracked      = 7
	otherBucket      = "Other"
)

var dayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type ProductSale struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type MonthRevenue struct {
	Label   string          `json:"month"`
	Month   time.Time       `json:"-"`
	Revenue decimal.Decimal `json:"revenue"`
}

type CustomerStat struct {
	Name             string          `json:"name"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int             `json:"transactionCount"`
}

type EmployeeStat struct {
	Name            string          `json:"name"`
	EmployeeID      string          `json:"employeeId"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
	SalesCount      int             `json:"salesCount"`
	TotalRevenue    decimal.Decimal `json:"totalRevenue"`
	BillCount       int             `json:"billCount"`
}

type DayRevenue struct {
	Date    string          `json:"date"`
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Report is everything the analytics screen renders.
type Report struct {
	ProductSales   []ProductSale  `json:"productSales"`
	MonthlyRevenue []MonthRevenue `json:"monthlyRevenue"`
	CustomerStats  []CustomerStat `json:"customerStats"`
	EmployeeStats  []EmployeeStat `json:"employeeStats"`
}

func Build(bills []domain.Bill, products []domain.Product, now time.Time) Report {
	return Report{
		ProductSales:   ProductSales(bills, products),
		MonthlyRevenue: MonthlyRevenue(bills, now),
		CustomerStats:  CustomerStats(bills),
		EmployeeStats:  EmployeeStats(bills),
	}
}

// billItems yields every line item of a bill, legacy or not.
func billItems(b domain.Bill) []domain.BillItem {
	if len(b.Customers) == 0 {
		return b.Items
	}
	var items []domain.BillItem
	for _, c := range b.Customers {
		items = append(items, c.Items...)
	}
	return items
}

// ProductSales sums quantities per product name. The five best sellers are
// returned with an Other bucket for the rest when it is non-zero.
func ProductSales(bills []domain.Bill, products []domain.Product) []ProductSale {
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	totals := map[string]int{}
	var order []string
	for _, b := range bills {
		for _, item := range billItems(b) {
			name, ok := names[item.ProductID]
			if !ok || name == "" {
				name = "Product " + item.ProductID
			}
			if _, seen := totals[name]; !seen {
				order = append(order, name)
			}
			totals[name] += item.Quantity
		}
	}

	all := make([]ProductSale, 0, len(order))
	for _, name := range order {
		all = append(all, ProductSale{Name: name, Quantity: totals[name]})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Quantity > all[j].Quantity })

	out := make([]ProductSale, 0, topN+1)
	other := 0
	for i, s := range all {
		if i < topN {
			out = append(out, ProductSale{Name: truncate(s.Name, productNameLimit), Quantity: s.Quantity})
			continue
		}
		other += s.Quantity
	}
	if other > 0 {
		out = append(out, ProductSale{Name: otherBucket, Quantity: other})
	}
	return out
}

func truncate(name string, limit int) string {
	if utf8.RuneCountInString(name) <= limit {
		return name
	}
	runes := []rune(name)
	return string(runes[:limit]) + "..."
}

// MonthlyRevenue buckets Bill.Amount by calendar month for the six months
// ending with now's month, in now's location.
func MonthlyRevenue(bills []domain.Bill, now time.Time) []MonthRevenue {
	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	out := make([]MonthRevenue, monthsTracked)
	index := make(map[string]int, monthsTracked)
	for i := range out {
		month := current.AddDate(0, i-(monthsTracked-1), 0)
		out[i] = MonthRevenue{
			Label:   fmt.Sprintf("%s '%s", month.Format("Jan"), month.Format("06")),
			Month:   month,
			Revenue: decimal.Zero,
		}
		index[month.Format("2006-01")] = i
	}

	for _, b := range bills {
		if b.CreatedAt.IsZero() {
			continue
		}
		i, ok := index[b.CreatedAt.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		out[i].Revenue = out[i].Revenue.Add(b.Amount())
	}
	return out
}

// CustomerStats ranks customer names by the sum of their subtotals. A
// legacy bill counts its total amount against its single customer.
func CustomerStats(bills []domain.Bill) []CustomerStat {
	stats := map[string]*CustomerStat{}
	var order []string
	add := func(name string, amount decimal.Decimal) {
		if strings.TrimSpace(name) == "" {
			name = domain.UnknownCustomerName
		}
		s, ok := stats[name]
		if !ok {
			s = &CustomerStat{Name: name, TotalAmount: decimal.Zero}
			stats[name] = s
			order = append(order, name)
		}
		s.TotalAmount = s.TotalAmount.Add(amount)
		s.TransactionCount++
	}

	for _, b := range bills {
		if len(b.Customers) == 0 {
			add(b.CustomerName, b.TotalAmount)
			continue
		}
		for _, c := range b.Customers {
			add(c.CustomerName, c.Subtotal)
		}
	}

	out := make([]CustomerStat, 0, len(order))
	for _, name := range order {
		out = append(out, *stats[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalAmount.GreaterThan(out[j].TotalAmount) })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// EmployeeStats ranks employees by commission earned. Sales count is the
// number of item lines, not bags.
func EmployeeStats(bills []domain.Bill) []EmployeeStat {
	stats := map[string]*EmployeeStat{}
	var order []string

	for _, b := range bills {
		name := b.EmployeeName
		if strings.TrimSpace(name) == "" {
			name = domain.UnknownEmployeeName
		}

		commission := decimal.Zero
		revenue := decimal.Zero
		lines := 0
		for _, item := range billItems(b) {
			commission = commission.Add(item.CommissionAmount)
			lines++
		}
		if len(b.Customers) == 0 {
			if len(b.Items) > 0 {
				revenue = b.TotalAmount
			}
		} else {
			for _, c := range b.Customers {
				revenue = revenue.Add(c.Subtotal)
			}
		}

		s, ok := stats[name]
		if !ok {
			s = &EmployeeStat{
				Name:            name,
				EmployeeID:      b.EmployeeID,
				TotalCommission: decimal.Zero,
				TotalRevenue:    decimal.Zero,
			}
			stats[name] = s
			order = append(order, name)
		}
		s.TotalCommission = s.TotalCommission.Add(commission)
		s.TotalRevenue = s.TotalRevenue.Add(revenue)
		s.SalesCount += lines
		s.BillCount++
	}

	out := make([]EmployeeStat, 0, len(order))
	for _, name := range order {
		out = append(out, *stats[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCommission.GreaterThan(out[j].TotalCommission) })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// WeeklyRevenue returns one bucket per day for the seven days ending today.
// Bills are matched on their UTC calendar date.
func WeeklyRevenue(bills []domain.Bill, now time.Time) []DayRevenue {
	out := make([]DayRevenue, daysTracked)
	index := make(map[string]int, daysTracked)
	for i := range out {
		day := now.AddDate(0, 0, i-(daysTracked-1))
		date := day.UTC().Format(time.DateOnly)
		out[i] = DayRevenue{Date: date, Day: dayNames[day.Weekday()], Revenue: decimal.Zero}
		index[date] = i
	}

	for _, b := range bills {
		if b.CreatedAt.IsZero() {
			continue
		}
		i, ok := index[b.CreatedAt.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		out[i].Revenue = out[i].Revenue.Add(b.Amount())
	}
	return out
}

type ReportSummary struct {
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	TotalTransactions int             `json:"totalTransactions"`
	AverageBill       decimal.Decimal `json:"averageBill"`
}

// ReportStats sums the loaded page. totalCount is the server-side match
// count; when zero the page length is used instead.
func ReportStats(bills []domain.Bill, totalCount int) ReportSummary {
	total := decimal.Zero
	for _, b := range bills {
		total = total.Add(b.ReportAmount())
	}
	count := totalCount
	if count <= 0 {
		count = len(bills)
	}
	summary := ReportSummary{TotalAmount: total, TotalTransactions: count, AverageBill: decimal.Zero}
	if count > 0 {
		summary.AverageBill = total.DivRound(decimal.NewFromInt(int64(count)), 2)
	}
	return summary
}

type CustomerDetail struct {
	CustomerName    string          `json:"customerName"`
	ItemCount       int             `json:"itemCount"`
	ItemsTotal      decimal.Decimal `json:"itemsTotal"`
	CommissionTotal decimal.Decimal `json:"commissionTotal"`
}

type Detail struct {
	ItemsTotal      decimal.Decimal  `json:"itemsTotal"`
	CommissionTotal decimal.Decimal  `json:"commissionTotal"`
	ItemLines       int              `json:"itemLines"`
	FinalAmount     decimal.Decimal  `json:"finalAmount"`
	Customers       []CustomerDetail `json:"customers"`
}

// DetailTotals computes the transaction detail figures. FinalAmount is the
// bill's total amount less its total commission, as displayed on the
// detail screen.
func DetailTotals(b domain.Bill) Detail {
	d := Detail{
		ItemsTotal:      decimal.Zero,
		CommissionTotal: decimal.Zero,
		FinalAmount:     b.TotalAmount.Sub(b.TotalCommission),
		Customers:       make([]CustomerDetail, 0, len(b.Customers)),
	}
	for _, c := range b.Customers {
		cd := CustomerDetail{CustomerName: c.CustomerName, ItemCount: len(c.Items), CommissionTotal: decimal.Zero}
		for _, item := range c.Items {
			d.ItemsTotal = d.ItemsTotal.Add(item.ItemAmount)
			cd.CommissionTotal = cd.CommissionTotal.Add(item.CommissionAmount)
		}
		cd.ItemsTotal = c.Subtotal.Sub(cd.CommissionTotal)
		d.CommissionTotal = d.CommissionTotal.Add(cd.CommissionTotal)
		d.ItemLines += len(c.Items)
		d.Customers = append(d.Customers, cd)
	}
	return d
}

// DealersFromBills returns the sorted distinct customer names on bills.
func DealersFromBills(bills []domain.Bill) []string {
	seen := map[string]struct{}{}
	for _, b := range bills {
		if len(b.Customers) == 0 {
			if name := strings.TrimSpace(b.CustomerName); name != "" {
				seen[name] = struct{}{}
			}
			continue
		}
		for _, c := range b.Customers {
			if name := strings.TrimSpace(c.CustomerName); name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func EmployeeTransactionCount(bills []domain.Bill, employeeID string) int {
	n := 0
	for _, b := range bills {
		if b.EmployeeID == employeeID {
			n++
		}
	}
	return n
}

// TransactionCounts counts bills per employee id in one pass.
func TransactionCounts(bills []domain.Bill) map[string]int {
	counts := make(map[string]int)
	for _, b := range bills {
		counts[b.EmployeeID]++
	}
	return counts
}
