package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/models"
)

func strPtr(s string) *string { return &s }

func TestDateRange(t *testing.T) {
	rng, err := dateRange(url.Values{"from": {"2024-01-01"}, "to": {"2024-01-31"}})
	if err != nil {
		t.Fatalf("dateRange: %v", err)
	}
	if got := rng["$lt"].(time.Time); !got.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("plain to date should include the whole day, got %v", got)
	}
	if got := rng["$gte"].(time.Time); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("$gte = %v", got)
	}

	rng, _ = dateRange(url.Values{"to": {"2024-01-31T12:00:00Z"}})
	if got := rng["$lt"].(time.Time); got.Hour() != 12 {
		t.Errorf("RFC 3339 to must not be extended, got %v", got)
	}

	if rng, err := dateRange(url.Values{}); rng != nil || err != nil {
		t.Errorf("empty range = %v, %v", rng, err)
	}
	if _, err := dateRange(url.Values{"from": {"yesterday"}}); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestAssetFilter(t *testing.T) {
	owner := primitive.NewObjectID()
	f, err := assetFilter(url.Values{
		"status":     {"all"},
		"category":   {"Furniture"},
		"assignedTo": {owner.Hex()},
		"deadStock":  {"true"},
		"search":     {" desk. "},
	})
	if err != nil {
		t.Fatalf("assetFilter: %v", err)
	}
	if _, ok := f["status"]; ok {
		t.Error("status=all should not filter")
	}
	if f["category"] != "Furniture" || f["assignedTo"] != owner || f["isDeadStock"] != true {
		t.Errorf("filter = %v", f)
	}
	or := f["$or"].(bson.A)
	if len(or) != 3 {
		t.Fatalf("$or has %d clauses", len(or))
	}
	re := or[0].(bson.M)["name"].(primitive.Regex)
	if re.Pattern != `desk\.` || re.Options != "i" {
		t.Errorf("search regex = %+v", re)
	}

	for _, bad := range []url.Values{{"assignedTo": {"nope"}}, {"deadStock": {"maybe"}}} {
		if _, err := assetFilter(bad); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

func TestSortSpec(t *testing.T) {
	got := sortSpec("-purchaseCost", assetSortFields)
	if got[0].Key != "purchaseCost" || got[0].Value != -1 || got[1].Key != "_id" {
		t.Errorf("sortSpec(-purchaseCost) = %v", got)
	}
	if got := sortSpec("password", assetSortFields); got[0].Key != "createdAt" || got[0].Value != -1 {
		t.Errorf("unknown field should fall back to newest first, got %v", got)
	}
}

func TestScopeFilterNeverIncludesDisposed(t *testing.T) {
	f := scopeFilter(models.AuditScope{
		Categories: []string{"IT"},
		Statuses:   []string{models.AssetAvailable, models.AssetDisposed},
	})
	statuses := f["status"].(bson.M)["$in"].([]string)
	if len(statuses) != 1 || statuses[0] != models.AssetAvailable {
		t.Errorf("statuses = %v", statuses)
	}
	if f["category"].(bson.M)["$in"].([]string)[0] != "IT" {
		t.Errorf("category clause = %v", f["category"])
	}

	f = scopeFilter(models.AuditScope{})
	if f["status"].(bson.M)["$ne"] != models.AssetDisposed {
		t.Errorf("empty scope = %v", f)
	}
}

func TestRespondServiceError(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	cases := []struct {
		err  error
		want int
	}{
		{notFound("asset"), http.StatusNotFound},
		{mongo.ErrNoDocuments, http.StatusNotFound},
		{conflict("tag %s taken", "A1"), http.StatusConflict},
		{dup, http.StatusConflict},
		{invalidState("asset is disposed"), http.StatusUnprocessableEntity},
		{forbidden("not yours"), http.StatusForbidden},
		{errors.New("socket closed"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		respondServiceError(rec, c.err, "failed")
		if rec.Code != c.want {
			t.Errorf("%v: status %d, want %d", c.err, rec.Code, c.want)
		}
	}

	rec := httptest.NewRecorder()
	respondServiceError(rec, notFound("vendor"), "")
	if body := rec.Body.String(); body != `{"error":"vendor not found"}` {
		t.Errorf("body = %s", body)
	}
}

func TestAssetUpdateSet(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	user := primitive.NewObjectID()

	set, err := assetUpdateSet(&models.Asset{Status: models.AssetAvailable},
		UpdateAssetRequest{Name: strPtr("  Desk  "), Status: strPtr(models.AssetDeadStock)}, now)
	if err != nil {
		t.Fatalf("assetUpdateSet: %v", err)
	}
	if set["name"] != "Desk" || set["isDeadStock"] != true || set["status"] != models.AssetDeadStock {
		t.Errorf("set = %v", set)
	}

	neg := decimal.NewFromInt(-1)
	cases := []struct {
		name  string
		asset models.Asset
		req   UpdateAssetRequest
		state bool
	}{
		{"disposed asset", models.Asset{Status: models.AssetDisposed}, UpdateAssetRequest{Name: strPtr("x")}, true},
		{"dispose via update", models.Asset{Status: models.AssetAvailable}, UpdateAssetRequest{Status: strPtr(models.AssetDisposed)}, true},
		{"assign via update", models.Asset{Status: models.AssetAvailable}, UpdateAssetRequest{Status: strPtr(models.AssetAssigned)}, true},
		{"available while assigned", models.Asset{Status: models.AssetInMaintenance, AssignedTo: &user}, UpdateAssetRequest{Status: strPtr(models.AssetAvailable)}, true},
		{"negative cost", models.Asset{Status: models.AssetAvailable}, UpdateAssetRequest{PurchaseCost: &neg}, false},
	}
	for _, c := range cases {
		_, err := assetUpdateSet(&c.asset, c.req, now)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if got := errors.Is(err, ErrInvalidState); got != c.state {
			t.Errorf("%s: invalid state = %v, want %v (%v)", c.name, got, c.state, err)
		}
	}
}

func TestDepreciationReportWithoutDepreciation(t *testing.T) {
	asset := models.Asset{PurchaseCost: decimal.NewFromInt(1200), UsefulLifeMonths: 12}
	rep := depreciationReport(asset, "none", time.Now())
	if !rep.BookValue.Equal(asset.PurchaseCost) || !rep.AccumulatedDepreciation.IsZero() || len(rep.Schedule) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestCheckReviewable(t *testing.T) {
	requester := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	if err := checkReviewable(&models.Approval{Status: models.ApprovalPending, RequestedBy: requester}, reviewer); err != nil {
		t.Errorf("pending approval: %v", err)
	}
	if err := checkReviewable(&models.Approval{Status: models.ApprovalApproved, RequestedBy: requester}, reviewer); !errors.Is(err, ErrConflict) {
		t.Errorf("re-review should conflict, got %v", err)
	}
	if err := checkReviewable(&models.Approval{Status: models.ApprovalPending, RequestedBy: requester}, requester); !errors.Is(err, ErrForbidden) {
		t.Errorf("self review should be forbidden, got %v", err)
	}
}

func TestTransferAssetSet(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := primitive.NewObjectID()

	set := transferAssetSet(&models.AssetTransfer{ToUserID: &to, ToDepartment: "Finance"}, now)
	if set["assignedTo"] != to || set["status"] != models.AssetAssigned || set["department"] != "Finance" {
		t.Errorf("set = %v", set)
	}
	if _, ok := set["location"]; ok {
		t.Error("empty location must not be written")
	}

	set = transferAssetSet(&models.AssetTransfer{ToLocation: "Warehouse B"}, now)
	if _, ok := set["status"]; ok {
		t.Error("relocation alone must not change status")
	}
	if set["location"] != "Warehouse B" {
		t.Errorf("location = %v", set["location"])
	}
}

func TestMonthsHelpers(t *testing.T) {
	months := lastMonths(time.Date(2024, 1, 31, 15, 0, 0, 0, time.UTC), 3)
	want := []string{"2023-11", "2023-12", "2024-01"}
	for i := range want {
		if months[i] != want[i] {
			t.Fatalf("lastMonths = %v, want %v", months, want)
		}
	}

	filled := fillMonths([]MonthlyAcquisition{{Month: "2023-12", Count: 4, Value: decimal.NewFromInt(800)}}, months)
	if len(filled) != 3 {
		t.Fatalf("len = %d", len(filled))
	}
	if filled[0].Month != "2023-11" || filled[0].Count != 0 || !filled[0].Value.IsZero() {
		t.Errorf("gap month = %+v", filled[0])
	}
	if filled[1].Count != 4 {
		t.Errorf("filled month = %+v", filled[1])
	}
}

func TestAssetsFromOrder(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	po := &models.PurchaseOrder{
		ID:       primitive.NewObjectID(),
		PONumber: "PO-202406-ABC",
		VendorID: primitive.NewObjectID(),
		Items: []models.POItem{
			{Description: "Laptop", Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
			{Description: "Mouse", Category: "Peripherals", Quantity: 1, UnitPrice: decimal.RequireFromString("19.99")},
		},
	}
	assets := assetsFromOrder(po, receiveRequest{Location: "HQ"}, primitive.NewObjectID(), now)
	if len(assets) != 3 {
		t.Fatalf("got %d assets, want 3", len(assets))
	}

	tags := map[string]bool{}
	for _, a := range assets {
		tags[a.AssetTag] = true
		if *a.VendorID != po.VendorID || *a.PurchaseOrderID != po.ID || !a.PurchaseDate.Equal(now) {
			t.Errorf("asset provenance = %+v", a)
		}
		if a.Status != models.AssetAvailable || a.Location != "HQ" {
			t.Errorf("asset placement = %s %s", a.Status, a.Location)
		}
	}
	if len(tags) != 3 {
		t.Error("asset tags must be unique")
	}
	if assets[0].Category != "Uncategorized" || assets[2].Category != "Peripherals" {
		t.Errorf("categories = %s, %s", assets[0].Category, assets[2].Category)
	}
	if !assets[2].PurchaseCost.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("unit cost = %s", assets[2].PurchaseCost)
	}
}

func TestScheduledAuditTiming(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	weekly := models.ScheduledAudit{Frequency: models.FrequencyWeekly, IsActive: true}
	start := now.Add(48 * time.Hour)
	if got := firstRunAt(weekly, &start, now); !got.Equal(start) {
		t.Errorf("future startAt = %v", got)
	}
	past := now.Add(-time.Hour)
	if got := firstRunAt(weekly, &past, now); !got.Equal(now.AddDate(0, 0, 7)) {
		t.Errorf("past startAt = %v", got)
	}

	custom := models.ScheduledAudit{Frequency: models.FrequencyCustom, CronExpression: "0 9 * * *", IsActive: true}
	if got := firstRunAt(custom, nil, now); !got.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("custom first run = %v", got)
	}

	// three missed days collapse into one run and the next due time lands tomorrow
	due := time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC)
	daily := models.ScheduledAudit{Frequency: models.FrequencyDaily, IsActive: true, NextRunAt: &due}
	next, ok := nextRunAfterTick(daily, now)
	if !ok || !next.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("nextRunAfterTick = %v, %v", next, ok)
	}
}

func TestClaimFilter(t *testing.T) {
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := models.ScheduledAudit{ID: primitive.NewObjectID(), Frequency: models.FrequencyMonthly, NextRunAt: &due}
	f := claimFilter(a)
	if f["nextRunAt"] != due || f["isActive"] != true {
		t.Errorf("claim filter = %v", f)
	}

	c := models.ScheduledAudit{ID: primitive.NewObjectID(), Frequency: models.FrequencyCustom}
	f = claimFilter(c)
	if f["lastRunAt"].(bson.M)["$exists"] != false {
		t.Errorf("first custom claim = %v", f)
	}
	c.LastRunAt = &due
	if f = claimFilter(c); f["lastRunAt"] != due {
		t.Errorf("later custom claim = %v", f)
	}
}

func TestReportLayouts(t *testing.T) {
	for _, typ := range models.ReportTypes {
		if _, ok := reportBuilders[typ]; !ok {
			t.Errorf("no builder for %s", typ)
		}
		if len(emptyReport(typ).Columns) == 0 {
			t.Errorf("no columns for %s", typ)
		}
	}
	if err := checkColumns(models.ReportDeadStock, []string{"assetTag", "bookValue"}); err != nil {
		t.Errorf("checkColumns: %v", err)
	}
	if err := checkColumns(models.ReportDeadStock, []string{"password"}); err == nil {
		t.Error("expected error for unknown column")
	}
	if !validFormat("text") || validFormat("pdf") {
		t.Error("validFormat mismatch")
	}
}

func TestDeadStockTable(t *testing.T) {
	now := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	marked := now.AddDate(0, 0, -10)
	tbl := deadStockTable([]models.Asset{{
		AssetTag:        "AST-9",
		Name:            "Projector",
		DeadStockReason: "obsolete",
		DeadStockMarked: &marked,
		PurchaseCost:    decimal.NewFromInt(1500),
	}}, "none", now)

	row := tbl.Rows[0]
	if row[0] != "AST-9" || row[5] != "obsolete" || row[6] != "2024-06-01" {
		t.Errorf("row = %v", row)
	}
	if row[7] != "10" || row[8] != "1500.00" || row[9] != "1500.00" {
		t.Errorf("idle/cost columns = %v", row[7:])
	}
}
