package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/draft"
)

type itemSpec struct {
	ProductID string
	Quantity  int
	Percent   *decimal.Decimal
}

type customerSpec struct {
	Name  string
	Items []itemSpec
}

// parseCustomer reads one --customer value of the form
// NAME=PRODUCT:QTY[:PCT],PRODUCT:QTY[:PCT]. The name may be empty when the
// bill starts from a dealer.
func parseCustomer(raw string) (customerSpec, error) {
	idx := strings.LastIndex(raw, "=")
	if idx < 0 {
		return customerSpec{}, fmt.Errorf("customer %q: expected NAME=PRODUCT:QTY[:PCT],...", raw)
	}
	spec := customerSpec{Name: strings.TrimSpace(raw[:idx])}

	for _, part := range strings.Split(raw[idx+1:], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return customerSpec{}, fmt.Errorf("item %q: expected PRODUCT:QTY[:PCT]", part)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return customerSpec{}, fmt.Errorf("item %q: invalid quantity: %w", part, err)
		}
		item := itemSpec{ProductID: strings.TrimSpace(fields[0]), Quantity: qty}
		if len(fields) == 3 {
			pct, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
			if err != nil {
				return customerSpec{}, fmt.Errorf("item %q: invalid commission percent: %w", part, err)
			}
			if pct.IsNegative() {
				return customerSpec{}, fmt.Errorf("item %q: commission percent must not be negative", part)
			}
			item.Percent = &pct
		}
		spec.Items = append(spec.Items, item)
	}
	return spec, nil
}

// fillDraft adds one draft customer per spec. The first spec fills the
// customer the draft starts with.
func fillDraft(d *draft.Draft, specs []customerSpec) error {
	for i, spec := range specs {
		if i > 0 {
			d.AddCustomer()
		}
		if spec.Name != "" {
			if err := d.RenameCustomer(d.ActiveIndex(), spec.Name); err != nil {
				return err
			}
		}
		for _, item := range spec.Items {
			if _, err := d.AddItem(item.ProductID, item.Quantity, item.Percent); err != nil {
				return fmt.Errorf("customer %d, product %s: %w", i+1, item.ProductID, err)
			}
		}
	}
	return nil
}
