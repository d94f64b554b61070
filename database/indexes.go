package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type indexSpec struct {
	collection string
	model      mongo.IndexModel
}

func indexSpecs() []indexSpec {
	unique := func(coll, field string) indexSpec {
		return indexSpec{coll, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}}
	}
	plain := func(coll string, keys bson.D) indexSpec {
		return indexSpec{coll, mongo.IndexModel{Keys: keys}}
	}

	return []indexSpec{
		unique(Users, "email"),
		unique(Assets, "assetTag"),
		unique(Vendors, "name"),
		unique(PurchaseOrders, "poNumber"),
		unique(Invoices, "invoiceNumber"),
		plain(Assets, bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}}),
		plain(Assets, bson.D{{Key: "assignedTo", Value: 1}}),
		plain(Maintenance, bson.D{{Key: "status", Value: 1}, {Key: "scheduledDate", Value: 1}}),
		plain(ScheduledAudits, bson.D{{Key: "isActive", Value: 1}, {Key: "nextRunAt", Value: 1}}),
		plain(ScheduledAuditRuns, bson.D{{Key: "scheduledAuditId", Value: 1}, {Key: "startedAt", Value: -1}}),
		plain(AuditLogs, bson.D{{Key: "createdAt", Value: -1}}),
		plain(AuditLogs, bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}}),
		plain(Notifications, bson.D{{Key: "userId", Value: 1}, {Key: "read", Value: 1}}),
	}
}

// EnsureIndexes creates the indexes the handlers rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, ix := range indexSpecs() {
		name, err := db.Collection(ix.collection).Indexes().CreateOne(ctx, ix.model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", ix.collection, err)
		}
		log.Printf("index ready: %s.%s", ix.collection, name)
	}
	return nil
}
