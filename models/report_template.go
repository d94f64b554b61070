package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ReportAssetInventory = "asset_inventory"
	ReportDeadStock      = "dead_stock"
	ReportMaintenance    = "maintenance"
	ReportVendor         = "vendor"
	ReportPurchaseOrders = "purchase_orders"
	ReportAuditRuns      = "audit_runs"
)

var (
	ReportTypes   = []string{ReportAssetInventory, ReportDeadStock, ReportMaintenance, ReportVendor, ReportPurchaseOrders, ReportAuditRuns}
	ReportFormats = []string{"csv", "json", "text"}
)

type ReportTemplate struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Type      string             `bson:"type" json:"type"`
	Filters   map[string]string  `bson:"filters,omitempty" json:"filters,omitempty"`
	Columns   []string           `bson:"columns,omitempty" json:"columns,omitempty"`
	Format    string             `bson:"format" json:"format"`
	CreatedBy primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func IsValidReportType(t string) bool { return contains(ReportTypes, t) }
