package main

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"smidi/billing/internal/config"
	"smidi/billing/internal/domain"
	"smidi/billing/internal/draft"
)

func TestValidateConfigRejectsMissingBaseURL(t *testing.T) {
	err := validateConfig(config.Config{SessionFile: "/tmp/session.json"})
	if err == nil {
		t.Fatalf("expected missing API_BASE_URL to be rejected")
	}
	err = validateConfig(config.Config{APIBaseURL: "ftp://billing.example.com", SessionFile: "/tmp/session.json"})
	if err == nil {
		t.Fatalf("expected non-http scheme to be rejected")
	}
}

func TestValidateConfigAcceptsValidValues(t *testing.T) {
	err := validateConfig(config.Config{
		APIBaseURL:      "https://billing.example.com",
		APIRateLimitRPS: 10,
		SessionFile:     "/tmp/session.json",
	})
	if err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestParseCustomer(t *testing.T) {
	spec, err := parseCustomer("Ramesh Patel=p1:2, p2:1:4.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Name != "Ramesh Patel" || len(spec.Items) != 2 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.Items[0].ProductID != "p1" || spec.Items[0].Quantity != 2 || spec.Items[0].Percent != nil {
		t.Fatalf("unexpected first item %+v", spec.Items[0])
	}
	if spec.Items[1].Percent == nil || !spec.Items[1].Percent.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("unexpected override %+v", spec.Items[1])
	}

	spec, err = parseCustomer("=p1:1")
	if err != nil || spec.Name != "" || len(spec.Items) != 1 {
		t.Fatalf("expected unnamed customer, got %+v err=%v", spec, err)
	}
}

func TestParseCustomerRejectsMalformedValues(t *testing.T) {
	for _, raw := range []string{"Ramesh", "Ramesh=p1", "Ramesh=p1:two", "Ramesh=p1:1:x", "Ramesh=p1:1:-2", "Ramesh=p1:1:2:3"} {
		if _, err := parseCustomer(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestFillDraft(t *testing.T) {
	catalog := []domain.Product{
		{ID: "p1", Name: "Urea", Rate: decimal.NewFromInt(500), Quantity: 10},
		{ID: "p2", Name: "DAP", Rate: decimal.NewFromInt(1200), Quantity: 1},
	}
	d := draft.New(catalog, draft.WithDefaultCustomerName("Patel Agro"))

	specs := []customerSpec{
		{Items: []itemSpec{{ProductID: "p1", Quantity: 2}}},
		{Name: "Suresh", Items: []itemSpec{{ProductID: "p2", Quantity: 1}}},
	}
	if err := fillDraft(d, specs); err != nil {
		t.Fatalf("fill: %v", err)
	}
	customers := d.Customers()
	if len(customers) != 2 || customers[0].CustomerName != "Patel Agro" || customers[1].CustomerName != "Suresh" {
		t.Fatalf("unexpected customers %+v", customers)
	}
	if len(customers[0].Items) != 1 || len(customers[1].Items) != 1 {
		t.Fatalf("expected one item per customer")
	}

	err := fillDraft(d, []customerSpec{{Name: "Amit", Items: []itemSpec{{ProductID: "p2", Quantity: 5}}}})
	if !errors.Is(err, draft.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}
