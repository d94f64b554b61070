// models/approval.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ApprovalTransfer      = "transfer"
	ApprovalDisposal      = "disposal"
	ApprovalPurchaseOrder = "purchase_order"
)

const (
	ApprovalPending   = "pending"
	ApprovalApproved  = "approved"
	ApprovalRejected  = "rejected"
	ApprovalCancelled = "cancelled"
)

var (
	ApprovalTypes    = []string{ApprovalTransfer, ApprovalDisposal, ApprovalPurchaseOrder}
	ApprovalStatuses = []string{ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalCancelled}
)

type Approval struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Type        string              `bson:"type" json:"type"`
	Title       string              `bson:"title" json:"title"`
	Status      string              `bson:"status" json:"status"`
	EntityType  string              `bson:"entityType" json:"entityType"`
	EntityID    primitive.ObjectID  `bson:"entityId" json:"entityId"`
	RequestedBy primitive.ObjectID  `bson:"requestedBy" json:"requestedBy"`
	ReviewerID  *primitive.ObjectID `bson:"reviewerId,omitempty" json:"reviewerId,omitempty"`
	Comments    string              `bson:"comments,omitempty" json:"comments,omitempty"`
	ReviewedAt  *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}
