package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/cache"
	"deadstock/models"
	"deadstock/utils"
)

const (
	dashboardTimeout  = 15 * time.Second
	acquisitionMonths = 6
)

type LabelCount struct {
	Label string `json:"label" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type MonthlyAcquisition struct {
	Month string          `json:"month" bson:"_id"`
	Count int64           `json:"count" bson:"count"`
	Value decimal.Decimal `json:"value" bson:"value"`
}

type VendorSpend struct {
	VendorID primitive.ObjectID `json:"vendorId" bson:"_id"`
	Name     string             `json:"name" bson:"-"`
	Spend    decimal.Decimal    `json:"spend" bson:"spend"`
}

type AdminDashboard struct {
	TotalUsers          int64                `json:"totalUsers"`
	ActiveUsers         int64                `json:"activeUsers"`
	TotalAssets         int64                `json:"totalAssets"`
	AssetsByStatus      map[string]int64     `json:"assetsByStatus"`
	Vendors             int64                `json:"vendors"`
	PendingApprovals    int64                `json:"pendingApprovals"`
	OpenMaintenance     int64                `json:"openMaintenance"`
	TotalAssetValue     decimal.Decimal      `json:"totalAssetValue"`
	MonthlyAcquisitions []MonthlyAcquisition `json:"monthlyAcquisitions"`
	RecentActivity      []models.AuditLog    `json:"recentActivity"`
	GeneratedAt         time.Time            `json:"generatedAt"`
}

type InventoryDashboard struct {
	AvailableAssets     int64                `json:"availableAssets"`
	AssetsByCategory    []LabelCount         `json:"assetsByCategory"`
	DeadStockCount      int64                `json:"deadStockCount"`
	DeadStockValue      decimal.Decimal      `json:"deadStockValue"`
	UpcomingMaintenance []models.Maintenance `json:"upcomingMaintenance"`
	OverdueMaintenance  int64                `json:"overdueMaintenance"`
	OpenPurchaseOrders  int64                `json:"openPurchaseOrders"`
	OverdueInvoices     int64                `json:"overdueInvoices"`
	TopVendors          []VendorSpend        `json:"topVendors"`
	GeneratedAt         time.Time            `json:"generatedAt"`
}

type AuditorDashboard struct {
	ActiveSchedules  int64                   `json:"activeSchedules"`
	RunsInProgress   int64                   `json:"runsInProgress"`
	RunsCompleted30d int64                   `json:"runsCompleted30d"`
	MissingAssets30d int64                   `json:"missingAssets30d"`
	LostAssets       int64                   `json:"lostAssets"`
	DeadStockCount   int64                   `json:"deadStockCount"`
	NextDue          []models.ScheduledAudit `json:"nextDue"`
	GeneratedAt      time.Time               `json:"generatedAt"`
}

type EmployeeDashboard struct {
	MyAssets            []models.Asset `json:"myAssets"`
	PendingTransfers    int64          `json:"pendingTransfers"`
	UnreadNotifications int64          `json:"unreadNotifications"`
	GeneratedAt         time.Time      `json:"generatedAt"`
}

// fanOut runs dashboard queries in parallel and collects their errors.
type fanOut struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (f *fanOut) Go(name string, fn func() error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := fn(); err != nil && err != mongo.ErrNoDocuments {
			f.mu.Lock()
			f.errs = append(f.errs, fmt.Errorf("%s: %w", name, err))
			f.mu.Unlock()
		}
	}()
}

// Wait blocks until every query is done and returns the first error.
func (f *fanOut) Wait() error {
	f.wg.Wait()
	for _, err := range f.errs {
		log.Printf("Dashboard fetch error: %v", err)
	}
	if len(f.errs) > 0 {
		return f.errs[0]
	}
	return nil
}

func countInto(ctx context.Context, coll *mongo.Collection, filter bson.M, dest *int64) func() error {
	return func() error {
		n, err := coll.CountDocuments(ctx, filter)
		*dest = n
		return err
	}
}

func aggregateInto(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, dest interface{}) error {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, dest)
}

func findInto(ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions, dest interface{}) error {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, dest)
}

// lastMonths lists the YYYY-MM keys of the n months ending with now's month.
func lastMonths(now time.Time, n int) []string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, n)
	for i := 0; i < n; i++ {
		months[i] = first.AddDate(0, i-n+1, 0).Format("2006-01")
	}
	return months
}

// fillMonths returns one entry per month in months, zero where rows has none.
func fillMonths(rows []MonthlyAcquisition, months []string) []MonthlyAcquisition {
	byMonth := make(map[string]MonthlyAcquisition, len(rows))
	for _, r := range rows {
		byMonth[r.Month] = r
	}
	out := make([]MonthlyAcquisition, len(months))
	for i, m := range months {
		if r, ok := byMonth[m]; ok {
			out[i] = r
			continue
		}
		out[i] = MonthlyAcquisition{Month: m, Value: decimal.Zero}
	}
	return out
}

// employeeDashboard is the cache kind of the dashboard that shows unread notifications.
const employeeDashboard = "employee"

// cachedDashboard serves from Redis when possible, else builds and stores.
func cachedDashboard(w http.ResponseWriter, r *http.Request, kind string, dest interface{}, build func(ctx context.Context, info utils.AuthInfo) (interface{}, error)) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	key := cache.DashboardKey(kind, info.UserID.Hex())
	if cache.Default.Get(r.Context(), key, dest) {
		utils.RespondWithJSON(w, http.StatusOK, dest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	data, err := build(ctx, info)
	if err != nil {
		log.Printf("%s dashboard error: %v", kind, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	cache.Default.Set(ctx, key, data)
	utils.RespondWithJSON(w, http.StatusOK, data)
}

func GetAdminDashboard(w http.ResponseWriter, r *http.Request) {
	cachedDashboard(w, r, "admin", &AdminDashboard{}, buildAdminDashboard)
}

func buildAdminDashboard(ctx context.Context, _ utils.AuthInfo) (interface{}, error) {
	now := time.Now().UTC()
	months := lastMonths(now, acquisitionMonths)
	since, _ := time.Parse("2006-01", months[0])

	d := AdminDashboard{AssetsByStatus: map[string]int64{}, GeneratedAt: now}
	var byStatus []LabelCount
	var acquisitions []MonthlyAcquisition
	var f fanOut

	f.Go("TotalUsers", countInto(ctx, userCollection, bson.M{}, &d.TotalUsers))
	f.Go("ActiveUsers", countInto(ctx, userCollection, bson.M{"isActive": true}, &d.ActiveUsers))
	f.Go("Vendors", countInto(ctx, vendorCollection, bson.M{}, &d.Vendors))
	f.Go("PendingApprovals", countInto(ctx, approvalCollection, bson.M{"status": models.ApprovalPending}, &d.PendingApprovals))
	f.Go("OpenMaintenance", countInto(ctx, maintenanceCollection, bson.M{"status": bson.M{"$in": []string{
		models.MaintenanceScheduled, models.MaintenanceInProgress, models.MaintenanceOverdue}}}, &d.OpenMaintenance))
	f.Go("AssetsByStatus", func() error {
		return aggregateInto(ctx, assetCollection, mongo.Pipeline{
			{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
		}, &byStatus)
	})
	f.Go("TotalAssetValue", func() error {
		v, err := sumField(ctx, assetCollection, bson.M{"status": bson.M{"$ne": models.AssetDisposed}}, "purchaseCost")
		d.TotalAssetValue = v
		return err
	})
	f.Go("MonthlyAcquisitions", func() error {
		return aggregateInto(ctx, assetCollection, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"createdAt": bson.M{"$gte": since}}}},
			{{Key: "$group", Value: bson.M{
				"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$createdAt"}},
				"count": bson.M{"$sum": 1},
				"value": bson.M{"$sum": "$purchaseCost"},
			}}},
		}, &acquisitions)
	})
	f.Go("RecentActivity", func() error {
		return findInto(ctx, auditLogCollection, bson.M{},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(10), &d.RecentActivity)
	})
	if err := f.Wait(); err != nil {
		return nil, err
	}

	for _, s := range byStatus {
		d.AssetsByStatus[s.Label] = s.Count
		d.TotalAssets += s.Count
	}
	d.MonthlyAcquisitions = fillMonths(acquisitions, months)
	if d.RecentActivity == nil {
		d.RecentActivity = []models.AuditLog{}
	}
	return d, nil
}

func GetInventoryDashboard(w http.ResponseWriter, r *http.Request) {
	cachedDashboard(w, r, "inventory", &InventoryDashboard{}, buildInventoryDashboard)
}

func buildInventoryDashboard(ctx context.Context, _ utils.AuthInfo) (interface{}, error) {
	now := time.Now().UTC()
	d := InventoryDashboard{GeneratedAt: now}
	deadStock := bson.M{"status": bson.M{"$ne": models.AssetDisposed},
		"$or": bson.A{bson.M{"isDeadStock": true}, bson.M{"status": models.AssetDeadStock}}}
	spendStatuses := []string{models.POApproved, models.POOrdered, models.POReceived}
	var f fanOut

	f.Go("AvailableAssets", countInto(ctx, assetCollection, bson.M{"status": models.AssetAvailable}, &d.AvailableAssets))
	f.Go("DeadStockCount", countInto(ctx, assetCollection, deadStock, &d.DeadStockCount))
	f.Go("DeadStockValue", func() error {
		v, err := sumField(ctx, assetCollection, deadStock, "purchaseCost")
		d.DeadStockValue = v
		return err
	})
	f.Go("OverdueMaintenance", countInto(ctx, maintenanceCollection, overdueMaintenanceFilter(now), &d.OverdueMaintenance))
	f.Go("OpenPurchaseOrders", countInto(ctx, purchaseOrderCollection, bson.M{"status": bson.M{"$in": []string{
		models.POPendingApproval, models.POApproved, models.POOrdered}}}, &d.OpenPurchaseOrders))
	f.Go("OverdueInvoices", countInto(ctx, invoiceCollection, overdueInvoiceFilter(now), &d.OverdueInvoices))
	f.Go("AssetsByCategory", func() error {
		return aggregateInto(ctx, assetCollection, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"status": bson.M{"$ne": models.AssetDisposed}}}},
			{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
			{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		}, &d.AssetsByCategory)
	})
	f.Go("UpcomingMaintenance", func() error {
		return findInto(ctx, maintenanceCollection, bson.M{
			"status":        bson.M{"$in": []string{models.MaintenanceScheduled, models.MaintenanceInProgress}},
			"scheduledDate": bson.M{"$gte": now, "$lte": now.AddDate(0, 0, 7)},
		}, options.Find().SetSort(bson.D{{Key: "scheduledDate", Value: 1}}).SetLimit(10), &d.UpcomingMaintenance)
	})
	f.Go("TopVendors", func() error {
		return aggregateInto(ctx, purchaseOrderCollection, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"status": bson.M{"$in": spendStatuses}}}},
			{{Key: "$group", Value: bson.M{"_id": "$vendorId", "spend": bson.M{"$sum": "$totalAmount"}}}},
			{{Key: "$sort", Value: bson.D{{Key: "spend", Value: -1}}}},
			{{Key: "$limit", Value: 5}},
		}, &d.TopVendors)
	})
	if err := f.Wait(); err != nil {
		return nil, err
	}

	if d.AssetsByCategory == nil {
		d.AssetsByCategory = []LabelCount{}
	}
	if d.UpcomingMaintenance == nil {
		d.UpcomingMaintenance = []models.Maintenance{}
	}
	if d.TopVendors == nil {
		d.TopVendors = []VendorSpend{}
	}
	ids := make([]primitive.ObjectID, len(d.TopVendors))
	for i, v := range d.TopVendors {
		ids[i] = v.VendorID
	}
	names, err := vendorNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range d.TopVendors {
		d.TopVendors[i].Name = names[d.TopVendors[i].VendorID]
	}
	return d, nil
}

func GetAuditorDashboard(w http.ResponseWriter, r *http.Request) {
	cachedDashboard(w, r, "auditor", &AuditorDashboard{}, buildAuditorDashboard)
}

func buildAuditorDashboard(ctx context.Context, _ utils.AuthInfo) (interface{}, error) {
	now := time.Now().UTC()
	monthAgo := now.AddDate(0, 0, -30)
	d := AuditorDashboard{GeneratedAt: now}
	var f fanOut

	f.Go("ActiveSchedules", countInto(ctx, scheduledAuditCollection, bson.M{"isActive": true}, &d.ActiveSchedules))
	f.Go("RunsInProgress", countInto(ctx, auditRunCollection, bson.M{"status": bson.M{"$in": []string{
		models.RunPending, models.RunInProgress}}}, &d.RunsInProgress))
	f.Go("RunsCompleted30d", countInto(ctx, auditRunCollection, bson.M{
		"status": models.RunCompleted, "completedAt": bson.M{"$gte": monthAgo}}, &d.RunsCompleted30d))
	f.Go("LostAssets", countInto(ctx, assetCollection, bson.M{"status": models.AssetLost}, &d.LostAssets))
	f.Go("DeadStockCount", countInto(ctx, assetCollection, bson.M{"isDeadStock": true,
		"status": bson.M{"$ne": models.AssetDisposed}}, &d.DeadStockCount))
	f.Go("MissingAssets30d", func() error {
		v, err := sumField(ctx, auditRunCollection, bson.M{
			"status": models.RunCompleted, "completedAt": bson.M{"$gte": monthAgo}}, "summary.missing")
		d.MissingAssets30d = v.IntPart()
		return err
	})
	f.Go("NextDue", func() error {
		return findInto(ctx, scheduledAuditCollection, bson.M{"isActive": true, "nextRunAt": bson.M{"$ne": nil}},
			options.Find().SetSort(bson.D{{Key: "nextRunAt", Value: 1}}).SetLimit(5), &d.NextDue)
	})
	if err := f.Wait(); err != nil {
		return nil, err
	}
	if d.NextDue == nil {
		d.NextDue = []models.ScheduledAudit{}
	}
	return d, nil
}

func GetEmployeeDashboard(w http.ResponseWriter, r *http.Request) {
	cachedDashboard(w, r, employeeDashboard, &EmployeeDashboard{}, buildEmployeeDashboard)
}

func buildEmployeeDashboard(ctx context.Context, info utils.AuthInfo) (interface{}, error) {
	d := EmployeeDashboard{GeneratedAt: time.Now().UTC()}
	var f fanOut

	f.Go("MyAssets", func() error {
		return findInto(ctx, assetCollection, bson.M{"assignedTo": info.UserID},
			options.Find().SetSort(bson.D{{Key: "assignedAt", Value: -1}}).SetLimit(int64(utils.MaxLimit)), &d.MyAssets)
	})
	f.Go("PendingTransfers", countInto(ctx, transferCollection, bson.M{
		"requestedBy": info.UserID, "status": models.TransferPending}, &d.PendingTransfers))
	f.Go("UnreadNotifications", countInto(ctx, notificationCollection, bson.M{
		"userId": info.UserID, "read": false}, &d.UnreadNotifications))
	if err := f.Wait(); err != nil {
		return nil, err
	}
	if d.MyAssets == nil {
		d.MyAssets = []models.Asset{}
	}
	return d, nil
}

// GetDashboard redirects callers to the dashboard for their role.
func GetDashboard(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	switch info.Role {
	case models.RoleAdmin:
		GetAdminDashboard(w, r)
	case models.RoleInventoryManager:
		GetInventoryDashboard(w, r)
	case models.RoleAuditor:
		GetAuditorDashboard(w, r)
	default:
		GetEmployeeDashboard(w, r)
	}
}
