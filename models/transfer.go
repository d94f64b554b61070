package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TransferPending   = "pending"
	TransferCompleted = "completed"
	TransferRejected  = "rejected"
	TransferCancelled = "cancelled"
)

type AssetTransfer struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	AssetID        primitive.ObjectID  `bson:"assetId" json:"assetId"`
	FromUserID     *primitive.ObjectID `bson:"fromUserId,omitempty" json:"fromUserId,omitempty"`
	ToUserID       *primitive.ObjectID `bson:"toUserId,omitempty" json:"toUserId,omitempty"`
	FromLocation   string              `bson:"fromLocation,omitempty" json:"fromLocation,omitempty"`
	ToLocation     string              `bson:"toLocation,omitempty" json:"toLocation,omitempty"`
	FromDepartment string              `bson:"fromDepartment,omitempty" json:"fromDepartment,omitempty"`
	ToDepartment   string              `bson:"toDepartment,omitempty" json:"toDepartment,omitempty"`
	Reason         string              `bson:"reason" json:"reason"`
	Status         string              `bson:"status" json:"status"`
	RequestedBy    primitive.ObjectID  `bson:"requestedBy" json:"requestedBy"`
	ApprovalID     primitive.ObjectID  `bson:"approvalId" json:"approvalId"`
	CompletedAt    *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}
