package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PODraft           = "draft"
	POPendingApproval = "pending_approval"
	POApproved        = "approved"
	POOrdered         = "ordered"
	POReceived        = "received"
	POCancelled       = "cancelled"
)

type POItem struct {
	Description string          `bson:"description" json:"description"`
	Category    string          `bson:"category,omitempty" json:"category,omitempty"`
	Quantity    int             `bson:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `bson:"unitPrice" json:"unitPrice"`
	Total       decimal.Decimal `bson:"total" json:"total"`
}

type PurchaseOrder struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PONumber         string              `bson:"poNumber" json:"poNumber"`
	VendorID         primitive.ObjectID  `bson:"vendorId" json:"vendorId"`
	Items            []POItem            `bson:"items" json:"items"`
	Subtotal         decimal.Decimal     `bson:"subtotal" json:"subtotal"`
	TaxRate          decimal.Decimal     `bson:"taxRate" json:"taxRate"`
	TaxAmount        decimal.Decimal     `bson:"taxAmount" json:"taxAmount"`
	TotalAmount      decimal.Decimal     `bson:"totalAmount" json:"totalAmount"`
	Status           string              `bson:"status" json:"status"`
	ExpectedDelivery *time.Time          `bson:"expectedDelivery,omitempty" json:"expectedDelivery,omitempty"`
	ReceivedAt       *time.Time          `bson:"receivedAt,omitempty" json:"receivedAt,omitempty"`
	RequestedBy      primitive.ObjectID  `bson:"requestedBy" json:"requestedBy"`
	ApprovalID       *primitive.ObjectID `bson:"approvalId,omitempty" json:"approvalId,omitempty"`
	Notes            string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

var hundred = decimal.NewFromInt(100)

// RecalculateTotals derives item totals, subtotal, tax and total from quantities,
// unit prices and the tax rate (a percentage).
func (po *PurchaseOrder) RecalculateTotals() {
	subtotal := decimal.Zero
	for i := range po.Items {
		item := &po.Items[i]
		item.Total = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		subtotal = subtotal.Add(item.Total)
	}
	po.Subtotal = subtotal
	po.TaxAmount = subtotal.Mul(po.TaxRate).Div(hundred).Round(2)
	po.TotalAmount = po.Subtotal.Add(po.TaxAmount)
}

// UnitCount is the number of physical units on the order.
func (po PurchaseOrder) UnitCount() int {
	n := 0
	for _, item := range po.Items {
		n += item.Quantity
	}
	return n
}
