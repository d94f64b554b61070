// models/asset.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	AssetAvailable     = "available"
	AssetAssigned      = "assigned"
	AssetInMaintenance = "in_maintenance"
	AssetDeadStock     = "dead_stock"
	AssetDisposed      = "disposed"
	AssetLost          = "lost"
)

var AssetStatuses = []string{AssetAvailable, AssetAssigned, AssetInMaintenance, AssetDeadStock, AssetDisposed, AssetLost}

const (
	ConditionNew     = "new"
	ConditionGood    = "good"
	ConditionFair    = "fair"
	ConditionPoor    = "poor"
	ConditionDamaged = "damaged"
)

var AssetConditions = []string{ConditionNew, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged}

type Asset struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	AssetTag         string              `bson:"assetTag" json:"assetTag"`
	Name             string              `bson:"name" json:"name"`
	Category         string              `bson:"category" json:"category"`
	Description      string              `bson:"description,omitempty" json:"description,omitempty"`
	SerialNumber     string              `bson:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	Manufacturer     string              `bson:"manufacturer,omitempty" json:"manufacturer,omitempty"`
	Model            string              `bson:"model,omitempty" json:"model,omitempty"`
	Location         string              `bson:"location,omitempty" json:"location,omitempty"`
	Department       string              `bson:"department,omitempty" json:"department,omitempty"`
	Status           string              `bson:"status" json:"status"`
	Condition        string              `bson:"condition" json:"condition"`
	AssignedTo       *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	AssignedAt       *time.Time          `bson:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	VendorID         *primitive.ObjectID `bson:"vendorId,omitempty" json:"vendorId,omitempty"`
	PurchaseOrderID  *primitive.ObjectID `bson:"purchaseOrderId,omitempty" json:"purchaseOrderId,omitempty"`
	PurchaseDate     *time.Time          `bson:"purchaseDate,omitempty" json:"purchaseDate,omitempty"`
	PurchaseCost     decimal.Decimal     `bson:"purchaseCost" json:"purchaseCost"`
	SalvageValue     decimal.Decimal     `bson:"salvageValue" json:"salvageValue"`
	UsefulLifeMonths int                 `bson:"usefulLifeMonths,omitempty" json:"usefulLifeMonths,omitempty"`
	WarrantyExpiry   *time.Time          `bson:"warrantyExpiry,omitempty" json:"warrantyExpiry,omitempty"`
	IsDeadStock      bool                `bson:"isDeadStock" json:"isDeadStock"`
	DeadStockReason  string              `bson:"deadStockReason,omitempty" json:"deadStockReason,omitempty"`
	DeadStockMarked  *time.Time          `bson:"deadStockMarkedAt,omitempty" json:"deadStockMarkedAt,omitempty"`
	LastAuditedAt    *time.Time          `bson:"lastAuditedAt,omitempty" json:"lastAuditedAt,omitempty"`
	Notes            string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy        primitive.ObjectID  `bson:"createdBy" json:"createdBy"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func IsValidAssetStatus(s string) bool    { return contains(AssetStatuses, s) }
func IsValidAssetCondition(c string) bool { return contains(AssetConditions, c) }

// CanDispose reports whether the asset qualifies for a disposal request.
func (a Asset) CanDispose() bool {
	if a.Status == AssetDisposed {
		return false
	}
	return a.IsDeadStock || a.Status == AssetDeadStock ||
		a.Condition == ConditionPoor || a.Condition == ConditionDamaged
}

// BookValue is the straight-line depreciated value at the given time. It never
// drops below salvage, and stays at cost when life or purchase date are unknown.
func (a Asset) BookValue(at time.Time) decimal.Decimal {
	if a.PurchaseDate == nil || a.UsefulLifeMonths <= 0 {
		return a.PurchaseCost
	}
	return a.bookValueAfter(MonthsBetween(*a.PurchaseDate, at))
}

func (a Asset) bookValueAfter(elapsed int) decimal.Decimal {
	if elapsed <= 0 {
		return a.PurchaseCost
	}
	if elapsed >= a.UsefulLifeMonths {
		return a.SalvageValue
	}
	depreciable := a.PurchaseCost.Sub(a.SalvageValue)
	if depreciable.IsNegative() {
		return a.PurchaseCost
	}
	used := depreciable.Mul(decimal.NewFromInt(int64(elapsed))).Div(decimal.NewFromInt(int64(a.UsefulLifeMonths)))
	return a.PurchaseCost.Sub(used).Round(2)
}

type DepreciationPoint struct {
	Month     string          `json:"month"`
	BookValue decimal.Decimal `json:"bookValue"`
}

// DepreciationSchedule lists the book value for every calendar month of the
// asset's useful life, starting with the purchase month.
func (a Asset) DepreciationSchedule() []DepreciationPoint {
	if a.PurchaseDate == nil || a.UsefulLifeMonths <= 0 {
		return []DepreciationPoint{}
	}
	start := *a.PurchaseDate
	points := make([]DepreciationPoint, 0, a.UsefulLifeMonths+1)
	for i := 0; i <= a.UsefulLifeMonths; i++ {
		// first of the month so day 29-31 purchases do not skip short months
		month := time.Date(start.Year(), start.Month()+time.Month(i), 1, 0, 0, 0, 0, start.Location())
		points = append(points, DepreciationPoint{
			Month:     month.Format("2006-01"),
			BookValue: a.bookValueAfter(i),
		})
	}
	return points
}

// MonthsBetween counts whole calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return -MonthsBetween(b, a)
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return months
}
