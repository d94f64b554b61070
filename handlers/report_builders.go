package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/reports"
)

// maxReportRows bounds a single generated report.
const maxReportRows = 5000

var errBadReportFilter = errors.New("invalid report filter")

func badFilter(err error) error {
	return fmt.Errorf("%w: %v", errBadReportFilter, err)
}

// reportBuilder loads the data for one report type and lays it out as a table.
type reportBuilder func(ctx context.Context, q url.Values, now time.Time) (reports.Table, error)

var reportBuilders = map[string]reportBuilder{
	models.ReportAssetInventory: buildAssetInventory,
	models.ReportDeadStock:      buildDeadStock,
	models.ReportMaintenance:    buildMaintenanceReport,
	models.ReportVendor:         buildVendorReport,
	models.ReportPurchaseOrders: buildPurchaseOrderReport,
	models.ReportAuditRuns:      buildAuditRunReport,
}

func fmtDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func fmtMoney(d decimal.Decimal) string { return d.StringFixed(2) }

func findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, dest interface{}) error {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort).SetLimit(maxReportRows))
	if err != nil {
		return fmt.Errorf("%s report query: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, dest)
}

// assetTags resolves asset ids to their tags for display.
func assetTags(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	tags := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return tags, nil
	}
	var assets []models.Asset
	cursor, err := assetCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"assetTag": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}
	for _, a := range assets {
		tags[a.ID] = a.AssetTag
	}
	return tags, nil
}

func vendorNames(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	names := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var vendors []models.Vendor
	cursor, err := vendorCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &vendors); err != nil {
		return nil, err
	}
	for _, v := range vendors {
		names[v.ID] = v.Name
	}
	return names, nil
}

func bookValue(a models.Asset, method string, now time.Time) decimal.Decimal {
	if method == "none" {
		return a.PurchaseCost
	}
	return a.BookValue(now)
}

func assetInventoryTable(assets []models.Asset, method string, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Asset Inventory",
		Columns: []reports.Column{
			{Key: "assetTag", Title: "Asset Tag"},
			{Key: "name", Title: "Name"},
			{Key: "category", Title: "Category"},
			{Key: "status", Title: "Status"},
			{Key: "condition", Title: "Condition"},
			{Key: "location", Title: "Location"},
			{Key: "department", Title: "Department"},
			{Key: "serialNumber", Title: "Serial Number"},
			{Key: "purchaseDate", Title: "Purchase Date"},
			{Key: "purchaseCost", Title: "Purchase Cost"},
			{Key: "bookValue", Title: "Book Value"},
		},
		Rows:        make([][]string, 0, len(assets)),
		GeneratedAt: now,
	}
	for _, a := range assets {
		t.Rows = append(t.Rows, []string{
			a.AssetTag, a.Name, a.Category, a.Status, a.Condition, a.Location, a.Department,
			a.SerialNumber, fmtDate(a.PurchaseDate), fmtMoney(a.PurchaseCost),
			fmtMoney(bookValue(a, method, now)),
		})
	}
	return t
}

func buildAssetInventory(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter, err := assetFilter(q)
	if err != nil {
		return reports.Table{}, badFilter(err)
	}
	settings, err := loadSettings(ctx)
	if err != nil {
		return reports.Table{}, err
	}
	var assets []models.Asset
	if err := findAll(ctx, assetCollection, filter, bson.D{{Key: "assetTag", Value: 1}}, &assets); err != nil {
		return reports.Table{}, err
	}
	return assetInventoryTable(assets, settings.DepreciationMethod, now), nil
}

func deadStockTable(assets []models.Asset, method string, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Dead Stock",
		Columns: []reports.Column{
			{Key: "assetTag", Title: "Asset Tag"},
			{Key: "name", Title: "Name"},
			{Key: "category", Title: "Category"},
			{Key: "location", Title: "Location"},
			{Key: "condition", Title: "Condition"},
			{Key: "reason", Title: "Reason"},
			{Key: "markedAt", Title: "Marked At"},
			{Key: "daysIdle", Title: "Days Idle"},
			{Key: "purchaseCost", Title: "Purchase Cost"},
			{Key: "bookValue", Title: "Book Value"},
		},
		Rows:        make([][]string, 0, len(assets)),
		GeneratedAt: now,
	}
	for _, a := range assets {
		idle := ""
		if a.DeadStockMarked != nil {
			idle = strconv.Itoa(int(now.Sub(*a.DeadStockMarked).Hours() / 24))
		}
		t.Rows = append(t.Rows, []string{
			a.AssetTag, a.Name, a.Category, a.Location, a.Condition, a.DeadStockReason,
			fmtDate(a.DeadStockMarked), idle, fmtMoney(a.PurchaseCost),
			fmtMoney(bookValue(a, method, now)),
		})
	}
	return t
}

func buildDeadStock(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter, err := assetFilter(q)
	if err != nil {
		return reports.Table{}, badFilter(err)
	}
	filter["$and"] = bson.A{bson.M{"$or": bson.A{
		bson.M{"isDeadStock": true},
		bson.M{"status": models.AssetDeadStock},
	}}}
	settings, err := loadSettings(ctx)
	if err != nil {
		return reports.Table{}, err
	}
	var assets []models.Asset
	if err := findAll(ctx, assetCollection, filter, bson.D{{Key: "deadStockMarkedAt", Value: 1}}, &assets); err != nil {
		return reports.Table{}, err
	}
	return deadStockTable(assets, settings.DepreciationMethod, now), nil
}

func maintenanceTable(records []models.Maintenance, tags map[primitive.ObjectID]string, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Maintenance",
		Columns: []reports.Column{
			{Key: "scheduledDate", Title: "Scheduled"},
			{Key: "assetTag", Title: "Asset Tag"},
			{Key: "type", Title: "Type"},
			{Key: "priority", Title: "Priority"},
			{Key: "status", Title: "Status"},
			{Key: "completedDate", Title: "Completed"},
			{Key: "cost", Title: "Cost"},
			{Key: "performedBy", Title: "Performed By"},
		},
		Rows:        make([][]string, 0, len(records)),
		GeneratedAt: now,
	}
	for _, m := range records {
		scheduled := m.ScheduledDate
		t.Rows = append(t.Rows, []string{
			fmtDate(&scheduled), tags[m.AssetID], m.Type, m.Priority, m.Status,
			fmtDate(m.CompletedDate), fmtMoney(m.Cost), m.PerformedBy,
		})
	}
	return t
}

func buildMaintenanceReport(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter := bson.M{}
	for _, key := range []string{"status", "type", "priority"} {
		if v := q.Get(key); v != "" && v != "all" {
			filter[key] = v
		}
	}
	rng, err := dateRange(q)
	if err != nil {
		return reports.Table{}, badFilter(err)
	}
	if rng != nil {
		filter["scheduledDate"] = rng
	}
	var records []models.Maintenance
	if err := findAll(ctx, maintenanceCollection, filter, bson.D{{Key: "scheduledDate", Value: 1}}, &records); err != nil {
		return reports.Table{}, err
	}
	ids := make([]primitive.ObjectID, 0, len(records))
	for _, m := range records {
		ids = append(ids, m.AssetID)
	}
	tags, err := assetTags(ctx, ids)
	if err != nil {
		return reports.Table{}, err
	}
	return maintenanceTable(records, tags, now), nil
}

type vendorTotals struct {
	Assets int64
	Spend  decimal.Decimal
}

func vendorTable(vendors []models.Vendor, totals map[primitive.ObjectID]vendorTotals, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Vendors",
		Columns: []reports.Column{
			{Key: "name", Title: "Name"},
			{Key: "category", Title: "Category"},
			{Key: "status", Title: "Status"},
			{Key: "rating", Title: "Rating"},
			{Key: "contactPerson", Title: "Contact"},
			{Key: "email", Title: "Email"},
			{Key: "phone", Title: "Phone"},
			{Key: "assets", Title: "Assets"},
			{Key: "spend", Title: "Spend"},
		},
		Rows:        make([][]string, 0, len(vendors)),
		GeneratedAt: now,
	}
	for _, v := range vendors {
		tot := totals[v.ID]
		t.Rows = append(t.Rows, []string{
			v.Name, v.Category, v.Status, strconv.FormatFloat(v.Rating, 'f', 1, 64),
			v.ContactPerson, v.Email, v.Phone, strconv.FormatInt(tot.Assets, 10), fmtMoney(tot.Spend),
		})
	}
	return t
}

func buildVendorReport(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter := bson.M{}
	for _, key := range []string{"status", "category"} {
		if v := q.Get(key); v != "" && v != "all" {
			filter[key] = v
		}
	}
	var vendors []models.Vendor
	if err := findAll(ctx, vendorCollection, filter, bson.D{{Key: "name", Value: 1}}, &vendors); err != nil {
		return reports.Table{}, err
	}

	totals := make(map[primitive.ObjectID]vendorTotals, len(vendors))
	ids := make([]primitive.ObjectID, 0, len(vendors))
	for _, v := range vendors {
		ids = append(ids, v.ID)
	}
	if len(ids) > 0 {
		counts, err := groupByVendor(ctx, assetCollection, bson.M{"vendorId": bson.M{"$in": ids}}, bson.M{"$sum": 1})
		if err != nil {
			return reports.Table{}, err
		}
		spend, err := groupByVendor(ctx, purchaseOrderCollection, bson.M{
			"vendorId": bson.M{"$in": ids},
			"status":   bson.M{"$in": []string{models.POApproved, models.POOrdered, models.POReceived}},
		}, bson.M{"$sum": "$totalAmount"})
		if err != nil {
			return reports.Table{}, err
		}
		for _, id := range ids {
			totals[id] = vendorTotals{Assets: counts[id].IntPart(), Spend: spend[id]}
		}
	}
	return vendorTable(vendors, totals, now), nil
}

// groupByVendor runs a $group on vendorId with the given accumulator.
func groupByVendor(ctx context.Context, coll *mongo.Collection, match bson.M, acc bson.M) (map[primitive.ObjectID]decimal.Decimal, error) {
	cursor, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$vendorId", "value": acc}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Value decimal.Decimal    `bson:"value"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Value
	}
	return out, nil
}

func purchaseOrderTable(orders []models.PurchaseOrder, names map[primitive.ObjectID]string, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Purchase Orders",
		Columns: []reports.Column{
			{Key: "poNumber", Title: "PO Number"},
			{Key: "vendor", Title: "Vendor"},
			{Key: "status", Title: "Status"},
			{Key: "units", Title: "Units"},
			{Key: "subtotal", Title: "Subtotal"},
			{Key: "tax", Title: "Tax"},
			{Key: "total", Title: "Total"},
			{Key: "createdAt", Title: "Created"},
			{Key: "receivedAt", Title: "Received"},
		},
		Rows:        make([][]string, 0, len(orders)),
		GeneratedAt: now,
	}
	for _, po := range orders {
		created := po.CreatedAt
		t.Rows = append(t.Rows, []string{
			po.PONumber, names[po.VendorID], po.Status, strconv.Itoa(po.UnitCount()),
			fmtMoney(po.Subtotal), fmtMoney(po.TaxAmount), fmtMoney(po.TotalAmount),
			fmtDate(&created), fmtDate(po.ReceivedAt),
		})
	}
	return t
}

func buildPurchaseOrderReport(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter := bson.M{}
	if v := q.Get("status"); v != "" && v != "all" {
		filter["status"] = v
	}
	if v := q.Get("vendorId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return reports.Table{}, badFilter(errors.New("invalid vendorId"))
		}
		filter["vendorId"] = id
	}
	rng, err := dateRange(q)
	if err != nil {
		return reports.Table{}, badFilter(err)
	}
	if rng != nil {
		filter["createdAt"] = rng
	}
	var orders []models.PurchaseOrder
	if err := findAll(ctx, purchaseOrderCollection, filter, bson.D{{Key: "createdAt", Value: -1}}, &orders); err != nil {
		return reports.Table{}, err
	}
	ids := make([]primitive.ObjectID, 0, len(orders))
	for _, po := range orders {
		ids = append(ids, po.VendorID)
	}
	names, err := vendorNames(ctx, ids)
	if err != nil {
		return reports.Table{}, err
	}
	return purchaseOrderTable(orders, names, now), nil
}

func auditRunTable(runs []models.ScheduledAuditRun, now time.Time) reports.Table {
	t := reports.Table{
		Title: "Audit Runs",
		Columns: []reports.Column{
			{Key: "name", Title: "Audit"},
			{Key: "status", Title: "Status"},
			{Key: "triggeredBy", Title: "Triggered By"},
			{Key: "startedAt", Title: "Started"},
			{Key: "completedAt", Title: "Completed"},
			{Key: "total", Title: "Total"},
			{Key: "verified", Title: "Verified"},
			{Key: "missing", Title: "Missing"},
			{Key: "discrepancies", Title: "Discrepancies"},
			{Key: "pending", Title: "Pending"},
		},
		Rows:        make([][]string, 0, len(runs)),
		GeneratedAt: now,
	}
	for _, run := range runs {
		started := run.StartedAt
		s := run.Summary
		if run.Status != models.RunCompleted {
			s = run.Summarize(nil)
		}
		t.Rows = append(t.Rows, []string{
			run.Name, run.Status, run.TriggeredBy, fmtDate(&started), fmtDate(run.CompletedAt),
			strconv.Itoa(s.Total), strconv.Itoa(s.Verified), strconv.Itoa(s.Missing),
			strconv.Itoa(s.Discrepancies), strconv.Itoa(s.Pending),
		})
	}
	return t
}

func buildAuditRunReport(ctx context.Context, q url.Values, now time.Time) (reports.Table, error) {
	filter := bson.M{}
	if v := q.Get("status"); v != "" && v != "all" {
		filter["status"] = v
	}
	if v := q.Get("scheduledAuditId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return reports.Table{}, badFilter(errors.New("invalid scheduledAuditId"))
		}
		filter["scheduledAuditId"] = id
	}
	rng, err := dateRange(q)
	if err != nil {
		return reports.Table{}, badFilter(err)
	}
	if rng != nil {
		filter["startedAt"] = rng
	}
	var runs []models.ScheduledAuditRun
	if err := findAll(ctx, auditRunCollection, filter, bson.D{{Key: "startedAt", Value: -1}}, &runs); err != nil {
		return reports.Table{}, err
	}
	return auditRunTable(runs, now), nil
}
