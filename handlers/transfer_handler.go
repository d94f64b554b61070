package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/models"
	"deadstock/utils"
)

type transferRequest struct {
	AssetID      string `json:"assetId" validate:"required"`
	ToUserID     string `json:"toUserId" validate:"required_without_all=ToLocation ToDepartment"`
	ToLocation   string `json:"toLocation"`
	ToDepartment string `json:"toDepartment"`
	Reason       string `json:"reason" validate:"required,max=1000"`
}

func loadTransfer(ctx context.Context, id primitive.ObjectID) (*models.AssetTransfer, error) {
	var t models.AssetTransfer
	if err := transferCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("transfer")
		}
		return nil, err
	}
	return &t, nil
}

// RequestTransfer opens a transfer and the approval that guards it. Employees
// can only move assets assigned to them.
func RequestTransfer(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.ToLocation = strings.TrimSpace(req.ToLocation)
	req.ToDepartment = strings.TrimSpace(req.ToDepartment)
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	assetID, err := primitive.ObjectIDFromHex(req.AssetID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid assetId")
		return
	}
	toUserID, err := utils.ParseOptionalObjectID(req.ToUserID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid toUserId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if info.Role == models.RoleEmployee {
		settings, err := loadSettings(ctx)
		if err != nil {
			respondServiceError(w, err, "failed to load settings")
			return
		}
		if !settings.AllowEmployeeRequests {
			utils.RespondWithError(w, http.StatusForbidden, "employee requests are disabled")
			return
		}
	}

	asset, err := loadAsset(ctx, assetID)
	if err != nil {
		respondServiceError(w, err, "failed to request transfer")
		return
	}
	if info.Role == models.RoleEmployee && !canSeeAsset(info, asset) {
		utils.RespondWithError(w, http.StatusForbidden, "you can only transfer assets assigned to you")
		return
	}
	if err := ensureMutable(asset); err != nil {
		respondServiceError(w, err, "")
		return
	}
	if toUserID != nil {
		var target models.User
		if err := userCollection.FindOne(ctx, bson.M{"_id": *toUserID}).Decode(&target); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				err = notFound("target user")
			}
			respondServiceError(w, err, "failed to request transfer")
			return
		}
		if !target.IsActive {
			respondServiceError(w, invalidState("cannot transfer to a deactivated user"), "")
			return
		}
	}

	pending, err := transferCollection.CountDocuments(ctx, bson.M{"assetId": assetID, "status": models.TransferPending})
	if err != nil {
		respondServiceError(w, err, "failed to request transfer")
		return
	}
	if pending > 0 {
		respondServiceError(w, conflict("asset already has a pending transfer"), "")
		return
	}

	now := time.Now().UTC()
	transfer := models.AssetTransfer{
		ID:             primitive.NewObjectID(),
		AssetID:        assetID,
		FromUserID:     asset.AssignedTo,
		ToUserID:       toUserID,
		FromLocation:   asset.Location,
		ToLocation:     req.ToLocation,
		FromDepartment: asset.Department,
		ToDepartment:   req.ToDepartment,
		Reason:         req.Reason,
		Status:         models.TransferPending,
		RequestedBy:    info.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	approval := newApproval(models.ApprovalTransfer, "Transfer of "+asset.Name+" ("+asset.AssetTag+")",
		"transfer", transfer.ID, info.UserID, now)
	transfer.ApprovalID = approval.ID

	if _, err := transferCollection.InsertOne(ctx, transfer); err != nil {
		respondServiceError(w, err, "failed to request transfer")
		return
	}
	if err := insertApproval(ctx, approval); err != nil {
		if _, derr := transferCollection.DeleteOne(ctx, bson.M{"_id": transfer.ID}); derr != nil {
			log.Printf("rollback transfer %s: %v", transfer.ID.Hex(), derr)
		}
		respondServiceError(w, err, "failed to request transfer")
		return
	}

	recordAudit(ctx, r, "transfer_request", "asset", assetID,
		bson.M{"transferId": transfer.ID, "toUserId": toUserID, "toLocation": req.ToLocation})
	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"transfer": transfer,
		"approval": approval,
	})
}

func ListTransfers(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if status := q.Get("status"); status != "" && status != "all" {
		filter["status"] = status
	}
	if v := q.Get("assetId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid assetId")
			return
		}
		filter["assetId"] = id
	}
	if info.Role == models.RoleEmployee {
		filter["requestedBy"] = info.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := transferCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("transfers count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch transfers")
		return
	}
	cursor, err := transferCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("transfers find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch transfers")
		return
	}
	defer cursor.Close(ctx)

	var transfers []models.AssetTransfer
	if err := cursor.All(ctx, &transfers); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode transfers")
		return
	}
	if transfers == nil {
		transfers = []models.AssetTransfer{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(transfers, total, page))
}

func GetTransfer(w http.ResponseWriter, r *http.Request) {
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

	t, err := loadTransfer(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch transfer")
		return
	}
	if info.Role == models.RoleEmployee && t.RequestedBy != info.UserID {
		utils.RespondWithError(w, http.StatusForbidden, "you can only view your own transfers")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, t)
}

// transferAssetSet is the asset update an approved transfer applies.
func transferAssetSet(t *models.AssetTransfer, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if t.ToUserID != nil {
		set["assignedTo"] = *t.ToUserID
		set["assignedAt"] = now
		set["status"] = models.AssetAssigned
	}
	if t.ToLocation != "" {
		set["location"] = t.ToLocation
	}
	if t.ToDepartment != "" {
		set["department"] = t.ToDepartment
	}
	return set
}

func applyTransferOutcome(ctx context.Context, transferID primitive.ObjectID, decision string, now time.Time) error {
	t, err := loadTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	if t.Status != models.TransferPending {
		return conflict("transfer is already %s", t.Status)
	}

	status := models.TransferRejected
	switch decision {
	case models.ApprovalApproved:
		asset, err := loadAsset(ctx, t.AssetID)
		if err != nil {
			return err
		}
		if err := ensureMutable(asset); err != nil {
			return err
		}
		if t.ToUserID != nil && asset.Status != models.AssetAvailable && asset.Status != models.AssetAssigned {
			return invalidState("asset is %s and cannot be reassigned", asset.Status)
		}
		if _, err := assetCollection.UpdateOne(ctx, bson.M{"_id": t.AssetID},
			bson.M{"$set": transferAssetSet(t, now)}); err != nil {
			return err
		}
		status = models.TransferCompleted
	case models.ApprovalCancelled:
		status = models.TransferCancelled
	}

	set := bson.M{"status": status, "updatedAt": now}
	if status == models.TransferCompleted {
		set["completedAt"] = now
	}
	_, err = transferCollection.UpdateOne(ctx, bson.M{"_id": transferID}, bson.M{"$set": set})
	return err
}
