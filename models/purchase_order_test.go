package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecalculateTotals(t *testing.T) {
	po := PurchaseOrder{
		TaxRate: decimal.RequireFromString("7.5"),
		Items: []POItem{
			{Description: "Laptop", Quantity: 3, UnitPrice: decimal.RequireFromString("899.99"), Total: decimal.RequireFromString("1")},
			{Description: "Dock", Quantity: 2, UnitPrice: decimal.RequireFromString("120.10")},
		},
	}
	po.RecalculateTotals()

	want := map[string]decimal.Decimal{
		"item0":    decimal.RequireFromString("2699.97"),
		"item1":    decimal.RequireFromString("240.2"),
		"subtotal": decimal.RequireFromString("2940.17"),
		"tax":      decimal.RequireFromString("220.51"),
		"total":    decimal.RequireFromString("3160.68"),
	}
	got := map[string]decimal.Decimal{
		"item0":    po.Items[0].Total,
		"item1":    po.Items[1].Total,
		"subtotal": po.Subtotal,
		"tax":      po.TaxAmount,
		"total":    po.TotalAmount,
	}
	for k, w := range want {
		if !got[k].Equal(w) {
			t.Errorf("%s = %s, want %s", k, got[k], w)
		}
	}
	if po.UnitCount() != 5 {
		t.Errorf("UnitCount = %d, want 5", po.UnitCount())
	}
}

func TestInvoiceTotal(t *testing.T) {
	inv := Invoice{Amount: decimal.RequireFromString("100.005"), TaxAmount: decimal.RequireFromString("8")}
	inv.RecalculateTotal()
	if !inv.TotalAmount.Equal(decimal.RequireFromString("108.01")) {
		t.Errorf("total = %s", inv.TotalAmount)
	}
}
