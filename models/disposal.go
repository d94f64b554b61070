package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DisposalPending   = "pending"
	DisposalCompleted = "completed"
	DisposalRejected  = "rejected"
	DisposalCancelled = "cancelled"
)

var DisposalMethods = []string{"sale", "scrap", "donation", "recycle", "return_to_vendor"}

// DisposalRecord captures the retirement of an asset.
type DisposalRecord struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	AssetID       primitive.ObjectID  `bson:"assetId" json:"assetId"`
	Method        string              `bson:"method" json:"method"`
	DisposalValue decimal.Decimal     `bson:"disposalValue" json:"disposalValue"`
	Reason        string              `bson:"reason" json:"reason"`
	Status        string              `bson:"status" json:"status"`
	RequestedBy   primitive.ObjectID  `bson:"requestedBy" json:"requestedBy"`
	ApprovedBy    *primitive.ObjectID `bson:"approvedBy,omitempty" json:"approvedBy,omitempty"`
	ApprovalID    primitive.ObjectID  `bson:"approvalId" json:"approvalId"`
	DisposedAt    *time.Time          `bson:"disposedAt,omitempty" json:"disposedAt,omitempty"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}
