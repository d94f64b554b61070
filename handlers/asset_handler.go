package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/utils"
)

type CreateAssetRequest struct {
	AssetTag         string          `json:"assetTag" validate:"max=50"`
	Name             string          `json:"name" validate:"required,max=200"`
	Category         string          `json:"category" validate:"required,max=100"`
	Description      string          `json:"description"`
	SerialNumber     string          `json:"serialNumber"`
	Manufacturer     string          `json:"manufacturer"`
	Model            string          `json:"model"`
	Location         string          `json:"location"`
	Department       string          `json:"department"`
	Condition        string          `json:"condition" validate:"omitempty,oneof=new good fair poor damaged"`
	VendorID         string          `json:"vendorId"`
	PurchaseDate     *time.Time      `json:"purchaseDate"`
	PurchaseCost     decimal.Decimal `json:"purchaseCost" validate:"gte=0"`
	SalvageValue     decimal.Decimal `json:"salvageValue" validate:"gte=0"`
	UsefulLifeMonths int             `json:"usefulLifeMonths" validate:"gte=0,lte=600"`
	WarrantyExpiry   *time.Time      `json:"warrantyExpiry"`
	Notes            string          `json:"notes"`
}

type UpdateAssetRequest struct {
	Name             *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category         *string          `json:"category" validate:"omitempty,min=1,max=100"`
	Description      *string          `json:"description"`
	SerialNumber     *string          `json:"serialNumber"`
	Manufacturer     *string          `json:"manufacturer"`
	Model            *string          `json:"model"`
	Location         *string          `json:"location"`
	Department       *string          `json:"department"`
	Status           *string          `json:"status" validate:"omitempty,oneof=available assigned in_maintenance dead_stock disposed lost"`
	Condition        *string          `json:"condition" validate:"omitempty,oneof=new good fair poor damaged"`
	PurchaseDate     *time.Time       `json:"purchaseDate"`
	PurchaseCost     *decimal.Decimal `json:"purchaseCost"`
	SalvageValue     *decimal.Decimal `json:"salvageValue"`
	UsefulLifeMonths *int             `json:"usefulLifeMonths" validate:"omitempty,gte=0,lte=600"`
	WarrantyExpiry   *time.Time       `json:"warrantyExpiry"`
	Notes            *string          `json:"notes"`
}

func loadAsset(ctx context.Context, id primitive.ObjectID) (*models.Asset, error) {
	var asset models.Asset
	if err := assetCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&asset); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("asset")
		}
		return nil, err
	}
	return &asset, nil
}

func ensureMutable(asset *models.Asset) error {
	if asset.Status == models.AssetDisposed {
		return invalidState("disposed assets cannot be modified")
	}
	return nil
}

// canSeeAsset reports whether the caller may read the asset. Employees only see
// what is assigned to them.
func canSeeAsset(info utils.AuthInfo, asset *models.Asset) bool {
	if info.Role != models.RoleEmployee {
		return true
	}
	return asset.AssignedTo != nil && *asset.AssignedTo == info.UserID
}

// ListAssets returns a filtered page of assets. Employees only see their own.
func ListAssets(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter, err := assetFilter(q)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if info.Role == models.RoleEmployee {
		filter["assignedTo"] = info.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := assetCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("assets count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "database query failed")
		return
	}

	cursor, err := assetCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, sortSpec(q.Get("sort"), assetSortFields)))
	if err != nil {
		log.Printf("assets Find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "database query failed")
		return
	}
	defer cursor.Close(ctx)

	var assets []models.Asset
	if err = cursor.All(ctx, &assets); err != nil {
		log.Printf("cursor decode error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode assets")
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(assets, total, page))
}

// GetMyAssets returns the assets assigned to the caller.
func GetMyAssets(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	listAssignedAssets(w, r, info.UserID)
}

func GetAsset(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch asset")
		return
	}
	if !canSeeAsset(info, asset) {
		utils.RespondWithError(w, http.StatusForbidden, "this asset is not assigned to you")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, asset)
}

func CreateAsset(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	var req CreateAssetRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	vendorID, err := utils.ParseOptionalObjectID(req.VendorID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid vendorId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if vendorID != nil {
		if _, err := loadVendor(ctx, *vendorID); err != nil {
			respondServiceError(w, err, "failed to create asset")
			return
		}
	}

	now := time.Now().UTC()
	asset := models.Asset{
		ID:               primitive.NewObjectID(),
		AssetTag:         strings.ToUpper(strings.TrimSpace(req.AssetTag)),
		Name:             strings.TrimSpace(req.Name),
		Category:         strings.TrimSpace(req.Category),
		Description:      req.Description,
		SerialNumber:     req.SerialNumber,
		Manufacturer:     req.Manufacturer,
		Model:            req.Model,
		Location:         req.Location,
		Department:       req.Department,
		Status:           models.AssetAvailable,
		Condition:        req.Condition,
		VendorID:         vendorID,
		PurchaseDate:     req.PurchaseDate,
		PurchaseCost:     req.PurchaseCost,
		SalvageValue:     req.SalvageValue,
		UsefulLifeMonths: req.UsefulLifeMonths,
		WarrantyExpiry:   req.WarrantyExpiry,
		Notes:            req.Notes,
		CreatedBy:        info.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if asset.AssetTag == "" {
		asset.AssetTag = utils.NewAssetTag()
	}
	if asset.Condition == "" {
		asset.Condition = models.ConditionGood
	}

	if _, err := assetCollection.InsertOne(ctx, asset); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = conflict("asset tag %s already exists", asset.AssetTag)
		}
		respondServiceError(w, err, "failed to create asset")
		return
	}

	recordAudit(ctx, r, "asset_create", "asset", asset.ID, bson.M{"assetTag": asset.AssetTag, "name": asset.Name})
	utils.RespondWithJSON(w, http.StatusCreated, asset)
}

// assetUpdateSet validates a partial update against the current asset and
// returns the $set document.
func assetUpdateSet(asset *models.Asset, req UpdateAssetRequest, now time.Time) (bson.M, error) {
	if err := ensureMutable(asset); err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": now}
	str := func(field string, v *string) {
		if v != nil {
			set[field] = strings.TrimSpace(*v)
		}
	}
	str("name", req.Name)
	str("category", req.Category)
	str("description", req.Description)
	str("serialNumber", req.SerialNumber)
	str("manufacturer", req.Manufacturer)
	str("model", req.Model)
	str("location", req.Location)
	str("department", req.Department)
	str("condition", req.Condition)
	str("notes", req.Notes)

	if req.Status != nil && *req.Status != asset.Status {
		switch *req.Status {
		case models.AssetDisposed:
			return nil, invalidState("assets are disposed through a disposal request")
		case models.AssetAssigned:
			return nil, invalidState("use the assign endpoint to assign an asset")
		case models.AssetDeadStock:
			set["isDeadStock"] = true
			set["deadStockMarkedAt"] = now
		case models.AssetAvailable:
			if asset.AssignedTo != nil {
				return nil, invalidState("unassign the asset before making it available")
			}
			set["isDeadStock"] = false
		}
		set["status"] = *req.Status
	}

	if req.PurchaseDate != nil {
		set["purchaseDate"] = *req.PurchaseDate
	}
	if req.WarrantyExpiry != nil {
		set["warrantyExpiry"] = *req.WarrantyExpiry
	}
	if req.UsefulLifeMonths != nil {
		set["usefulLifeMonths"] = *req.UsefulLifeMonths
	}
	if req.PurchaseCost != nil {
		if req.PurchaseCost.IsNegative() {
			return nil, errors.New("purchaseCost must be at least 0")
		}
		set["purchaseCost"] = *req.PurchaseCost
	}
	if req.SalvageValue != nil {
		if req.SalvageValue.IsNegative() {
			return nil, errors.New("salvageValue must be at least 0")
		}
		set["salvageValue"] = *req.SalvageValue
	}
	return set, nil
}

func UpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateAssetRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to update asset")
		return
	}
	set, err := assetUpdateSet(asset, req, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			respondServiceError(w, err, "")
		} else {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	var updated models.Asset
	err = assetCollection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to update asset")
		return
	}

	delete(set, "updatedAt")
	recordAudit(ctx, r, "asset_update", "asset", id, set)
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// DeleteAsset removes an asset that was never assigned or maintained. Anything
// with history has to go through disposal instead.
func DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to delete asset")
		return
	}
	if asset.AssignedTo != nil {
		respondServiceError(w, conflict("asset is assigned, unassign it first"), "")
		return
	}
	maintained, err := maintenanceCollection.CountDocuments(ctx, bson.M{"assetId": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete asset")
		return
	}
	if maintained > 0 {
		respondServiceError(w, conflict("asset has maintenance history, dispose of it instead"), "")
		return
	}

	if _, err := assetCollection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		respondServiceError(w, err, "failed to delete asset")
		return
	}

	recordAudit(ctx, r, "asset_delete", "asset", id, bson.M{"assetTag": asset.AssetTag})
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Asset deleted"})
}

type assignRequest struct {
	UserID string `json:"userId" validate:"required"`
	Notes  string `json:"notes"`
}

func AssignAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req assignRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var user models.User
	if err := userCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = notFound("user")
		}
		respondServiceError(w, err, "failed to assign asset")
		return
	}
	if !user.IsActive {
		respondServiceError(w, invalidState("cannot assign to a deactivated user"), "")
		return
	}

	now := time.Now().UTC()
	var updated models.Asset
	err = assetCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.AssetAvailable},
		bson.M{"$set": bson.M{
			"status":     models.AssetAssigned,
			"assignedTo": userID,
			"assignedAt": now,
			"department": user.Department,
			"updatedAt":  now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing asset from one in the wrong state.
			asset, lerr := loadAsset(ctx, id)
			if lerr != nil {
				err = lerr
			} else {
				err = invalidState("asset is %s, only available assets can be assigned", asset.Status)
			}
		}
		respondServiceError(w, err, "failed to assign asset")
		return
	}

	recordAudit(ctx, r, "asset_assign", "asset", id, bson.M{"userId": userID, "notes": req.Notes})
	notifyUser(ctx, userID, "Asset assigned",
		updated.Name+" ("+updated.AssetTag+") has been assigned to you", "info", "/assets/"+id.Hex())
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func UnassignAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to unassign asset")
		return
	}
	if asset.AssignedTo == nil {
		respondServiceError(w, invalidState("asset is not assigned"), "")
		return
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if asset.Status == models.AssetAssigned {
		set["status"] = models.AssetAvailable
	}
	var updated models.Asset
	err = assetCollection.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": set, "$unset": bson.M{"assignedTo": "", "assignedAt": ""}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to unassign asset")
		return
	}

	recordAudit(ctx, r, "asset_unassign", "asset", id, bson.M{"userId": *asset.AssignedTo})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

type deadStockRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func MarkDeadStock(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req deadStockRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to mark dead stock")
		return
	}
	if err := ensureMutable(asset); err != nil {
		respondServiceError(w, err, "")
		return
	}
	if asset.Status == models.AssetDeadStock {
		respondServiceError(w, invalidState("asset is already dead stock"), "")
		return
	}

	now := time.Now().UTC()
	var updated models.Asset
	err = assetCollection.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"status":            models.AssetDeadStock,
				"isDeadStock":       true,
				"deadStockReason":   req.Reason,
				"deadStockMarkedAt": now,
				"updatedAt":         now,
			},
			"$unset": bson.M{"assignedTo": "", "assignedAt": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to mark dead stock")
		return
	}

	recordAudit(ctx, r, "asset_mark_dead_stock", "asset", id, bson.M{"reason": req.Reason, "previousStatus": asset.Status})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// RestoreAsset takes an asset out of dead stock (or lost) and makes it available.
func RestoreAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to restore asset")
		return
	}
	if asset.Status != models.AssetDeadStock && asset.Status != models.AssetLost && !asset.IsDeadStock {
		respondServiceError(w, invalidState("only dead stock or lost assets can be restored"), "")
		return
	}
	if err := ensureMutable(asset); err != nil {
		respondServiceError(w, err, "")
		return
	}

	var updated models.Asset
	err = assetCollection.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"status": models.AssetAvailable, "isDeadStock": false, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"deadStockReason": "", "deadStockMarkedAt": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to restore asset")
		return
	}

	recordAudit(ctx, r, "asset_restore", "asset", id, bson.M{"previousStatus": asset.Status})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

type AssetHistory struct {
	Asset       models.Asset            `json:"asset"`
	AuditLogs   []models.AuditLog       `json:"auditLogs"`
	Maintenance []models.Maintenance    `json:"maintenance"`
	Transfers   []models.AssetTransfer  `json:"transfers"`
	Disposals   []models.DisposalRecord `json:"disposals"`
}

func GetAssetHistory(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch asset history")
		return
	}
	if !canSeeAsset(info, asset) {
		utils.RespondWithError(w, http.StatusForbidden, "this asset is not assigned to you")
		return
	}

	history := AssetHistory{
		Asset:       *asset,
		AuditLogs:   []models.AuditLog{},
		Maintenance: []models.Maintenance{},
		Transfers:   []models.AssetTransfer{},
		Disposals:   []models.DisposalRecord{},
	}
	newest := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(200)

	loaders := []struct {
		coll   *mongo.Collection
		filter bson.M
		dest   interface{}
	}{
		{auditLogCollection, bson.M{"entityType": "asset", "entityId": id}, &history.AuditLogs},
		{maintenanceCollection, bson.M{"assetId": id}, &history.Maintenance},
		{transferCollection, bson.M{"assetId": id}, &history.Transfers},
		{disposalCollection, bson.M{"assetId": id}, &history.Disposals},
	}
	for _, l := range loaders {
		cursor, err := l.coll.Find(ctx, l.filter, newest)
		if err != nil {
			log.Printf("asset history %s find error: %v", l.coll.Name(), err)
			utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch asset history")
			return
		}
		err = cursor.All(ctx, l.dest)
		cursor.Close(ctx)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode asset history")
			return
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, history)
}

type DepreciationReport struct {
	AssetID                 primitive.ObjectID         `json:"assetId"`
	Method                  string                     `json:"method"`
	PurchaseCost            decimal.Decimal            `json:"purchaseCost"`
	SalvageValue            decimal.Decimal            `json:"salvageValue"`
	UsefulLifeMonths        int                        `json:"usefulLifeMonths"`
	BookValue               decimal.Decimal            `json:"bookValue"`
	AccumulatedDepreciation decimal.Decimal            `json:"accumulatedDepreciation"`
	Schedule                []models.DepreciationPoint `json:"schedule"`
}

func depreciationReport(asset models.Asset, method string, now time.Time) DepreciationReport {
	rep := DepreciationReport{
		AssetID:          asset.ID,
		Method:           method,
		PurchaseCost:     asset.PurchaseCost,
		SalvageValue:     asset.SalvageValue,
		UsefulLifeMonths: asset.UsefulLifeMonths,
		BookValue:        asset.PurchaseCost,
		Schedule:         []models.DepreciationPoint{},
	}
	if method != "none" {
		rep.BookValue = asset.BookValue(now)
		rep.Schedule = asset.DepreciationSchedule()
	}
	rep.AccumulatedDepreciation = rep.PurchaseCost.Sub(rep.BookValue)
	return rep
}

func GetAssetDepreciation(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to compute depreciation")
		return
	}
	if !canSeeAsset(info, asset) {
		utils.RespondWithError(w, http.StatusForbidden, "this asset is not assigned to you")
		return
	}
	settings, err := loadSettings(ctx)
	if err != nil {
		respondServiceError(w, err, "failed to load settings")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, depreciationReport(*asset, settings.DepreciationMethod, time.Now().UTC()))
}

func ListAssetCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	values, err := assetCollection.Distinct(ctx, "category", bson.M{})
	if err != nil {
		log.Printf("asset categories distinct error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch categories")
		return
	}

	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			categories = append(categories, s)
		}
	}
	sort.Strings(categories)
	utils.RespondWithJSON(w, http.StatusOK, categories)
}

// deadStockCandidateFilter matches available assets untouched since cutoff.
func deadStockCandidateFilter(cutoff time.Time) bson.M {
	return bson.M{
		"status":      models.AssetAvailable,
		"isDeadStock": bson.M{"$ne": true},
		"updatedAt":   bson.M{"$lt": cutoff},
	}
}

// SweepDeadStockCandidates tells inventory managers which idle assets might be
// dead stock. Nothing is flagged automatically.
func SweepDeadStockCandidates(ctx context.Context, now time.Time) (int64, error) {
	settings, err := loadSettings(ctx)
	if err != nil {
		return 0, err
	}
	filter := deadStockCandidateFilter(now.AddDate(0, 0, -settings.DeadStockThresholdDays))
	count, err := assetCollection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count dead stock candidates: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	cursor, err := assetCollection.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: 1}}).
		SetLimit(10).
		SetProjection(bson.M{"assetTag": 1}))
	if err != nil {
		return 0, fmt.Errorf("list dead stock candidates: %w", err)
	}
	var oldest []models.Asset
	err = cursor.All(ctx, &oldest)
	cursor.Close(ctx)
	if err != nil {
		return 0, fmt.Errorf("decode dead stock candidates: %w", err)
	}
	tags := make([]string, 0, len(oldest))
	for _, a := range oldest {
		tags = append(tags, a.AssetTag)
	}

	msg := fmt.Sprintf("%d available assets have not changed in %d days: %s",
		count, settings.DeadStockThresholdDays, strings.Join(tags, ", "))
	if count > int64(len(tags)) {
		msg += ", ..."
	}
	notifyRole(ctx, []string{models.RoleInventoryManager}, "Dead stock candidates", msg,
		"info", "/assets?status=available&sort=updatedAt")
	return count, nil
}
