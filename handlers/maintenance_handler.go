package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/utils"
)

type createMaintenanceRequest struct {
	AssetID       string          `json:"assetId" validate:"required"`
	Type          string          `json:"type" validate:"required,oneof=preventive corrective inspection upgrade"`
	Description   string          `json:"description" validate:"max=2000"`
	ScheduledDate time.Time       `json:"scheduledDate" validate:"required"`
	Priority      string          `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	VendorID      string          `json:"vendorId"`
	Cost          decimal.Decimal `json:"cost" validate:"gte=0"`
	PerformedBy   string          `json:"performedBy"`
	Notes         string          `json:"notes"`
}

type updateMaintenanceRequest struct {
	Type          *string          `json:"type" validate:"omitempty,oneof=preventive corrective inspection upgrade"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	ScheduledDate *time.Time       `json:"scheduledDate"`
	Status        *string          `json:"status" validate:"omitempty,oneof=scheduled in_progress"`
	Priority      *string          `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Cost          *decimal.Decimal `json:"cost"`
	PerformedBy   *string          `json:"performedBy"`
	Notes         *string          `json:"notes"`
}

type completeMaintenanceRequest struct {
	CompletedDate *time.Time       `json:"completedDate"`
	Cost          *decimal.Decimal `json:"cost"`
	Notes         *string          `json:"notes"`
	Condition     string           `json:"condition" validate:"omitempty,oneof=new good fair poor damaged"`
}

func loadMaintenance(ctx context.Context, id primitive.ObjectID) (*models.Maintenance, error) {
	var m models.Maintenance
	if err := maintenanceCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("maintenance record")
		}
		return nil, err
	}
	return &m, nil
}

// releaseFromMaintenance puts an asset back to assigned or available, but only
// if it is still in maintenance.
func releaseFromMaintenance(ctx context.Context, assetID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := assetCollection.UpdateOne(ctx,
		bson.M{"_id": assetID, "status": models.AssetInMaintenance, "assignedTo": bson.M{"$exists": true}},
		bson.M{"$set": bson.M{"status": models.AssetAssigned, "updatedAt": now}})
	if err != nil {
		return err
	}
	_, err = assetCollection.UpdateOne(ctx,
		bson.M{"_id": assetID, "status": models.AssetInMaintenance},
		bson.M{"$set": bson.M{"status": models.AssetAvailable, "updatedAt": now}})
	return err
}

func maintenanceFilter(r *http.Request) (bson.M, error) {
	q := r.URL.Query()
	filter := bson.M{}
	if v := q.Get("assetId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("invalid assetId")
		}
		filter["assetId"] = id
	}
	if v := q.Get("status"); v != "" && v != "all" {
		filter["status"] = v
	}
	if v := q.Get("type"); v != "" && v != "all" {
		filter["type"] = v
	}
	if v := q.Get("priority"); v != "" && v != "all" {
		filter["priority"] = v
	}
	rng, err := dateRange(q)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		filter["scheduledDate"] = rng
	}
	return filter, nil
}

func ListMaintenance(w http.ResponseWriter, r *http.Request) {
	filter, err := maintenanceFilter(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := utils.GetPaginationParams(r.URL.Query())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := maintenanceCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("maintenance count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch maintenance")
		return
	}
	records, err := findMaintenance(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "scheduledDate", Value: -1}}))
	if err != nil {
		log.Printf("maintenance find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch maintenance")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(records, total, page))
}

func findMaintenance(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Maintenance, error) {
	cursor, err := maintenanceCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.Maintenance
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Maintenance{}
	}
	return records, nil
}

func GetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := loadMaintenance(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch maintenance record")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, m)
}

func CreateMaintenance(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	var req createMaintenanceRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	assetID, err := primitive.ObjectIDFromHex(req.AssetID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid assetId")
		return
	}
	vendorID, err := utils.ParseOptionalObjectID(req.VendorID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid vendorId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, assetID)
	if err != nil {
		respondServiceError(w, err, "failed to schedule maintenance")
		return
	}
	if err := ensureMutable(asset); err != nil {
		respondServiceError(w, err, "")
		return
	}
	if vendorID != nil {
		if _, err := loadVendor(ctx, *vendorID); err != nil {
			respondServiceError(w, err, "failed to schedule maintenance")
			return
		}
	}

	now := time.Now().UTC()
	m := models.Maintenance{
		ID:            primitive.NewObjectID(),
		AssetID:       assetID,
		Type:          req.Type,
		Description:   req.Description,
		ScheduledDate: req.ScheduledDate.UTC(),
		Status:        models.MaintenanceScheduled,
		Priority:      req.Priority,
		VendorID:      vendorID,
		Cost:          req.Cost,
		PerformedBy:   req.PerformedBy,
		Notes:         req.Notes,
		CreatedBy:     info.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if m.Priority == "" {
		m.Priority = "medium"
	}

	if _, err := maintenanceCollection.InsertOne(ctx, m); err != nil {
		respondServiceError(w, err, "failed to schedule maintenance")
		return
	}

	recordAudit(ctx, r, "maintenance_create", "maintenance", m.ID,
		bson.M{"assetId": assetID, "type": m.Type, "scheduledDate": m.ScheduledDate})
	utils.RespondWithJSON(w, http.StatusCreated, m)
}

func UpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req updateMaintenanceRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Cost != nil && req.Cost.IsNegative() {
		utils.RespondWithError(w, http.StatusBadRequest, "cost must be at least 0")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := loadMaintenance(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to update maintenance")
		return
	}
	if !m.IsOpen() {
		respondServiceError(w, invalidState("maintenance is %s and can no longer be edited", m.Status), "")
		return
	}

	now := time.Now().UTC()
	set := bson.M{"updatedAt": now}
	if req.Type != nil {
		set["type"] = *req.Type
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.ScheduledDate != nil {
		set["scheduledDate"] = req.ScheduledDate.UTC()
		// Rescheduling an overdue job into the future makes it scheduled again.
		if m.Status == models.MaintenanceOverdue && req.ScheduledDate.After(now) {
			set["status"] = models.MaintenanceScheduled
		}
	}
	if req.Priority != nil {
		set["priority"] = *req.Priority
	}
	if req.Cost != nil {
		set["cost"] = *req.Cost
	}
	if req.PerformedBy != nil {
		set["performedBy"] = *req.PerformedBy
	}
	if req.Notes != nil {
		set["notes"] = *req.Notes
	}

	startWork := req.Status != nil && *req.Status == models.MaintenanceInProgress && m.Status != models.MaintenanceInProgress
	if req.Status != nil {
		set["status"] = *req.Status
	}

	if startWork {
		asset, err := loadAsset(ctx, m.AssetID)
		if err != nil {
			respondServiceError(w, err, "failed to update maintenance")
			return
		}
		if err := ensureMutable(asset); err != nil {
			respondServiceError(w, err, "")
			return
		}
		if _, err := assetCollection.UpdateOne(ctx, bson.M{"_id": m.AssetID},
			bson.M{"$set": bson.M{"status": models.AssetInMaintenance, "updatedAt": now}}); err != nil {
			respondServiceError(w, err, "failed to update asset status")
			return
		}
	}

	var updated models.Maintenance
	err = maintenanceCollection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to update maintenance")
		return
	}

	delete(set, "updatedAt")
	recordAudit(ctx, r, "maintenance_update", "maintenance", id, set)
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req completeMaintenanceRequest
	if r.ContentLength != 0 {
		if err := utils.ParseJSON(r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Cost != nil && req.Cost.IsNegative() {
		utils.RespondWithError(w, http.StatusBadRequest, "cost must be at least 0")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := loadMaintenance(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to complete maintenance")
		return
	}
	if !m.IsOpen() {
		respondServiceError(w, invalidState("maintenance is already %s", m.Status), "")
		return
	}

	now := time.Now().UTC()
	completed := now
	if req.CompletedDate != nil {
		completed = req.CompletedDate.UTC()
	}
	set := bson.M{"status": models.MaintenanceCompleted, "completedDate": completed, "updatedAt": now}
	if req.Cost != nil {
		set["cost"] = *req.Cost
	}
	if req.Notes != nil {
		set["notes"] = *req.Notes
	}

	var updated models.Maintenance
	err = maintenanceCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": m.Status}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = conflict("maintenance was modified concurrently, reload and retry")
		}
		respondServiceError(w, err, "failed to complete maintenance")
		return
	}

	if err := releaseFromMaintenance(ctx, m.AssetID); err != nil {
		log.Printf("release asset %s from maintenance: %v", m.AssetID.Hex(), err)
	}
	if req.Condition != "" {
		if _, err := assetCollection.UpdateOne(ctx,
			bson.M{"_id": m.AssetID, "status": bson.M{"$ne": models.AssetDisposed}},
			bson.M{"$set": bson.M{"condition": req.Condition, "updatedAt": now}}); err != nil {
			log.Printf("update asset %s condition: %v", m.AssetID.Hex(), err)
		}
	}

	recordAudit(ctx, r, "maintenance_complete", "maintenance", id,
		bson.M{"assetId": m.AssetID, "completedDate": completed})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func CancelMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, err := loadMaintenance(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to cancel maintenance")
		return
	}
	if !m.IsOpen() {
		respondServiceError(w, invalidState("maintenance is already %s", m.Status), "")
		return
	}

	var updated models.Maintenance
	err = maintenanceCollection.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": models.MaintenanceCancelled, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		respondServiceError(w, err, "failed to cancel maintenance")
		return
	}
	if m.Status == models.MaintenanceInProgress {
		if err := releaseFromMaintenance(ctx, m.AssetID); err != nil {
			log.Printf("release asset %s from maintenance: %v", m.AssetID.Hex(), err)
		}
	}

	recordAudit(ctx, r, "maintenance_cancel", "maintenance", id, bson.M{"assetId": m.AssetID})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// GetUpcomingMaintenance lists scheduled work due within ?days (default from settings).
func GetUpcomingMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			utils.RespondWithError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	} else {
		settings, err := loadSettings(ctx)
		if err != nil {
			respondServiceError(w, err, "failed to load settings")
			return
		}
		days = settings.MaintenanceReminderDays
	}

	now := time.Now().UTC()
	records, err := findMaintenance(ctx, bson.M{
		"status":        bson.M{"$in": []string{models.MaintenanceScheduled, models.MaintenanceInProgress}},
		"scheduledDate": bson.M{"$gte": now, "$lte": now.AddDate(0, 0, days)},
	}, options.Find().SetSort(bson.D{{Key: "scheduledDate", Value: 1}}))
	if err != nil {
		log.Printf("upcoming maintenance error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch upcoming maintenance")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

func overdueMaintenanceFilter(now time.Time) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"status": models.MaintenanceOverdue},
			bson.M{"status": models.MaintenanceScheduled, "scheduledDate": bson.M{"$lt": now}},
		},
	}
}

func GetOverdueMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	records, err := findMaintenance(ctx, overdueMaintenanceFilter(time.Now().UTC()),
		options.Find().SetSort(bson.D{{Key: "scheduledDate", Value: 1}}))
	if err != nil {
		log.Printf("overdue maintenance error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch overdue maintenance")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

// SweepOverdueMaintenance flags scheduled work whose date has passed and tells
// inventory managers about it.
func SweepOverdueMaintenance(ctx context.Context, now time.Time) (int64, error) {
	res, err := maintenanceCollection.UpdateMany(ctx,
		bson.M{"status": models.MaintenanceScheduled, "scheduledDate": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.MaintenanceOverdue, "updatedAt": now}})
	if err != nil {
		return 0, fmt.Errorf("mark overdue maintenance: %w", err)
	}
	if res.ModifiedCount > 0 {
		recordSystemAudit(ctx, "maintenance_overdue_sweep", "maintenance", primitive.NilObjectID,
			bson.M{"count": res.ModifiedCount})
		notifyRole(ctx, []string{models.RoleInventoryManager, models.RoleAdmin}, "Maintenance overdue",
			fmt.Sprintf("%d maintenance jobs are past their scheduled date", res.ModifiedCount),
			"warning", "/maintenance?status=overdue")
	}
	return res.ModifiedCount, nil
}
