package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaintenanceScheduled  = "scheduled"
	MaintenanceInProgress = "in_progress"
	MaintenanceCompleted  = "completed"
	MaintenanceCancelled  = "cancelled"
	MaintenanceOverdue    = "overdue"
)

var (
	MaintenanceStatuses   = []string{MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled, MaintenanceOverdue}
	MaintenanceTypes      = []string{"preventive", "corrective", "inspection", "upgrade"}
	MaintenancePriorities = []string{"low", "medium", "high", "critical"}
)

type Maintenance struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	AssetID       primitive.ObjectID  `bson:"assetId" json:"assetId"`
	Type          string              `bson:"type" json:"type"`
	Description   string              `bson:"description,omitempty" json:"description,omitempty"`
	ScheduledDate time.Time           `bson:"scheduledDate" json:"scheduledDate"`
	CompletedDate *time.Time          `bson:"completedDate,omitempty" json:"completedDate,omitempty"`
	Status        string              `bson:"status" json:"status"`
	Priority      string              `bson:"priority" json:"priority"`
	VendorID      *primitive.ObjectID `bson:"vendorId,omitempty" json:"vendorId,omitempty"`
	Cost          decimal.Decimal     `bson:"cost" json:"cost"`
	PerformedBy   string              `bson:"performedBy,omitempty" json:"performedBy,omitempty"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     primitive.ObjectID  `bson:"createdBy" json:"createdBy"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsOpen reports whether the record still needs work.
func (m Maintenance) IsOpen() bool {
	return m.Status == MaintenanceScheduled || m.Status == MaintenanceInProgress || m.Status == MaintenanceOverdue
}
