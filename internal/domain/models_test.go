package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func billRequest(percent string) CreateBillRequest {
	return CreateBillRequest{
		EmployeeID: "e1",
		Customers: []CreateBillCustomer{{
			CustomerName: "Ramesh",
			Items:        []CreateBillItem{{ProductID: "p1", Quantity: 2, CommissionPercent: decimal.RequireFromString(percent)}},
		}},
		Notes: "cash",
	}
}

func TestCreateBillRequestEqual(t *testing.T) {
	if !billRequest("3").Equal(billRequest("3.0")) {
		t.Fatalf("expected 3 and 3.0 to match")
	}
	if billRequest("3").Equal(billRequest("3.5")) {
		t.Fatalf("expected different percents to differ")
	}

	moreItems := billRequest("3")
	moreItems.Customers[0].Items = append(moreItems.Customers[0].Items, CreateBillItem{ProductID: "p2", Quantity: 1})
	if billRequest("3").Equal(moreItems) {
		t.Fatalf("expected extra item to differ")
	}

	renamed := billRequest("3")
	renamed.Customers[0].CustomerName = "Suresh"
	if billRequest("3").Equal(renamed) {
		t.Fatalf("expected renamed customer to differ")
	}
}

func TestCreateBillItemMarshalsPercentAsNumber(t *testing.T) {
	raw, err := json.Marshal(CreateBillItem{ProductID: "p1", Quantity: 2, CommissionPercent: decimal.RequireFromString("2.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"productId":"p1","quantity":2,"commissionPercent":2.5}` {
		t.Fatalf("unexpected item json %s", raw)
	}
}
