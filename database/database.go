// database/database.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"deadstock/config"
)

var Client *mongo.Client

// Collection names.
const (
	Users              = "users"
	Assets             = "assets"
	Vendors            = "vendors"
	Maintenance        = "maintenance"
	Approvals          = "approvals"
	Transfers          = "assetTransfers"
	PurchaseOrders     = "purchaseOrders"
	Invoices           = "invoices"
	Disposals          = "disposals"
	ReportTemplates    = "reportTemplates"
	ScheduledAudits    = "scheduledAudits"
	ScheduledAuditRuns = "scheduledAuditRuns"
	Settings           = "settings"
	AuditLogs          = "auditLogs"
	Notifications      = "notifications"
)

func Connect() error {
	if config.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}

	clientOptions := options.Client().
		ApplyURI(config.MongoURI).
		SetRegistry(NewRegistry()).
		SetConnectTimeout(20 * time.Second).
		SetServerSelectionTimeout(15 * time.Second).
		SetSocketTimeout(20 * time.Second).
		SetMaxPoolSize(50)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	Client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPing()

	if err = Client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = Client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Successfully connected to MongoDB (db=%s)", config.MongoDB)
	return nil
}

// DB returns the application database.
func DB() *mongo.Database {
	return Client.Database(config.MongoDB)
}

func Disconnect() {
	if Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Client.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect warning: %v", err)
	}
}
