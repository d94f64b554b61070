package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/models"
	"deadstock/utils"
)

type disposalRequest struct {
	AssetID       string          `json:"assetId" validate:"required"`
	Method        string          `json:"method" validate:"required,oneof=sale scrap donation recycle return_to_vendor"`
	DisposalValue decimal.Decimal `json:"disposalValue" validate:"gte=0"`
	Reason        string          `json:"reason" validate:"required,max=1000"`
	Notes         string          `json:"notes"`
}

func loadDisposal(ctx context.Context, id primitive.ObjectID) (*models.DisposalRecord, error) {
	var d models.DisposalRecord
	if err := disposalCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("disposal")
		}
		return nil, err
	}
	return &d, nil
}

func RequestDisposal(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	var req disposalRequest
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

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	asset, err := loadAsset(ctx, assetID)
	if err != nil {
		respondServiceError(w, err, "failed to request disposal")
		return
	}
	if !asset.CanDispose() {
		respondServiceError(w, invalidState("only dead stock or poor/damaged assets can be disposed"), "")
		return
	}
	pending, err := disposalCollection.CountDocuments(ctx, bson.M{"assetId": assetID, "status": models.DisposalPending})
	if err != nil {
		respondServiceError(w, err, "failed to request disposal")
		return
	}
	if pending > 0 {
		respondServiceError(w, conflict("asset already has a pending disposal"), "")
		return
	}

	now := time.Now().UTC()
	disposal := models.DisposalRecord{
		ID:            primitive.NewObjectID(),
		AssetID:       assetID,
		Method:        req.Method,
		DisposalValue: req.DisposalValue,
		Reason:        req.Reason,
		Status:        models.DisposalPending,
		RequestedBy:   info.UserID,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	approval := newApproval(models.ApprovalDisposal, "Disposal of "+asset.Name+" ("+asset.AssetTag+") by "+req.Method,
		"disposal", disposal.ID, info.UserID, now)
	disposal.ApprovalID = approval.ID

	if _, err := disposalCollection.InsertOne(ctx, disposal); err != nil {
		respondServiceError(w, err, "failed to request disposal")
		return
	}
	if err := insertApproval(ctx, approval); err != nil {
		if _, derr := disposalCollection.DeleteOne(ctx, bson.M{"_id": disposal.ID}); derr != nil {
			log.Printf("rollback disposal %s: %v", disposal.ID.Hex(), derr)
		}
		respondServiceError(w, err, "failed to request disposal")
		return
	}

	recordAudit(ctx, r, "disposal_request", "asset", assetID,
		bson.M{"disposalId": disposal.ID, "method": req.Method, "value": req.DisposalValue.String()})
	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"disposal": disposal,
		"approval": approval,
	})
}

func ListDisposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if status := q.Get("status"); status != "" && status != "all" {
		filter["status"] = status
	}
	if method := q.Get("method"); method != "" && method != "all" {
		filter["method"] = method
	}
	rng, err := dateRange(q)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rng != nil {
		filter["createdAt"] = rng
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := disposalCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("disposals count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch disposals")
		return
	}
	cursor, err := disposalCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("disposals find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch disposals")
		return
	}
	defer cursor.Close(ctx)

	var disposals []models.DisposalRecord
	if err := cursor.All(ctx, &disposals); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode disposals")
		return
	}
	if disposals == nil {
		disposals = []models.DisposalRecord{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(disposals, total, page))
}

func GetDisposal(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	d, err := loadDisposal(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch disposal")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, d)
}

func applyDisposalOutcome(ctx context.Context, disposalID primitive.ObjectID, decision string, reviewer primitive.ObjectID, now time.Time) error {
	d, err := loadDisposal(ctx, disposalID)
	if err != nil {
		return err
	}
	if d.Status != models.DisposalPending {
		return conflict("disposal is already %s", d.Status)
	}

	set := bson.M{"updatedAt": now}
	switch decision {
	case models.ApprovalApproved:
		asset, err := loadAsset(ctx, d.AssetID)
		if err != nil {
			return err
		}
		if err := ensureMutable(asset); err != nil {
			return err
		}
		if _, err := assetCollection.UpdateOne(ctx, bson.M{"_id": d.AssetID}, bson.M{
			"$set":   bson.M{"status": models.AssetDisposed, "updatedAt": now},
			"$unset": bson.M{"assignedTo": "", "assignedAt": ""},
		}); err != nil {
			return err
		}
		set["status"] = models.DisposalCompleted
		set["approvedBy"] = reviewer
		set["disposedAt"] = now
	case models.ApprovalRejected:
		set["status"] = models.DisposalRejected
	default:
		set["status"] = models.DisposalCancelled
	}

	_, err = disposalCollection.UpdateOne(ctx, bson.M{"_id": disposalID}, bson.M{"$set": set})
	return err
}
