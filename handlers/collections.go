// handlers/collections.go
package handlers

import (
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/database"
)

var (
	userCollection           *mongo.Collection
	assetCollection          *mongo.Collection
	vendorCollection         *mongo.Collection
	maintenanceCollection    *mongo.Collection
	approvalCollection       *mongo.Collection
	transferCollection       *mongo.Collection
	purchaseOrderCollection  *mongo.Collection
	invoiceCollection        *mongo.Collection
	disposalCollection       *mongo.Collection
	reportTemplateCollection *mongo.Collection
	scheduledAuditCollection *mongo.Collection
	auditRunCollection       *mongo.Collection
	settingsCollection       *mongo.Collection
	auditLogCollection       *mongo.Collection
	notificationCollection   *mongo.Collection
)

func InitCollections() {
	UseDatabase(database.DB())
}

// UseDatabase points every handler collection at db. Tests pass a mock database.
func UseDatabase(db *mongo.Database) {
	userCollection = db.Collection(database.Users)
	assetCollection = db.Collection(database.Assets)
	vendorCollection = db.Collection(database.Vendors)
	maintenanceCollection = db.Collection(database.Maintenance)
	approvalCollection = db.Collection(database.Approvals)
	transferCollection = db.Collection(database.Transfers)
	purchaseOrderCollection = db.Collection(database.PurchaseOrders)
	invoiceCollection = db.Collection(database.Invoices)
	disposalCollection = db.Collection(database.Disposals)
	reportTemplateCollection = db.Collection(database.ReportTemplates)
	scheduledAuditCollection = db.Collection(database.ScheduledAudits)
	auditRunCollection = db.Collection(database.ScheduledAuditRuns)
	settingsCollection = db.Collection(database.Settings)
	auditLogCollection = db.Collection(database.AuditLogs)
	notificationCollection = db.Collection(database.Notifications)
}
