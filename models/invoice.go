package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	InvoiceUnpaid    = "unpaid"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

var InvoiceStatuses = []string{InvoiceUnpaid, InvoicePaid, InvoiceOverdue, InvoiceCancelled}

type Invoice struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	InvoiceNumber   string              `bson:"invoiceNumber" json:"invoiceNumber"`
	VendorID        primitive.ObjectID  `bson:"vendorId" json:"vendorId"`
	PurchaseOrderID *primitive.ObjectID `bson:"purchaseOrderId,omitempty" json:"purchaseOrderId,omitempty"`
	Amount          decimal.Decimal     `bson:"amount" json:"amount"`
	TaxAmount       decimal.Decimal     `bson:"taxAmount" json:"taxAmount"`
	TotalAmount     decimal.Decimal     `bson:"totalAmount" json:"totalAmount"`
	IssueDate       time.Time           `bson:"issueDate" json:"issueDate"`
	DueDate         time.Time           `bson:"dueDate" json:"dueDate"`
	Status          string              `bson:"status" json:"status"`
	PaidAt          *time.Time          `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (inv *Invoice) RecalculateTotal() {
	inv.TotalAmount = inv.Amount.Add(inv.TaxAmount).Round(2)
}
