package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/utils"
)

// reviewerRoles may approve or reject requests and see every approval.
var reviewerRoles = []string{models.RoleAdmin, models.RoleInventoryManager}

// newApproval builds a pending approval for an entity. The caller inserts it.
func newApproval(kind, title, entityType string, entityID, requestedBy primitive.ObjectID, now time.Time) models.Approval {
	return models.Approval{
		ID:          primitive.NewObjectID(),
		Type:        kind,
		Title:       title,
		Status:      models.ApprovalPending,
		EntityType:  entityType,
		EntityID:    entityID,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// insertApproval stores the approval and lets reviewers know it is waiting.
func insertApproval(ctx context.Context, a models.Approval) error {
	if _, err := approvalCollection.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	notifyRole(ctx, reviewerRoles, "Approval requested", a.Title, "info", "/approvals/"+a.ID.Hex())
	return nil
}

func loadApproval(ctx context.Context, id primitive.ObjectID) (*models.Approval, error) {
	var a models.Approval
	if err := approvalCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("approval")
		}
		return nil, err
	}
	return &a, nil
}

// ListApprovals returns approvals; non-reviewers only see their own requests.
func ListApprovals(w http.ResponseWriter, r *http.Request) {
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
	if kind := q.Get("type"); kind != "" && kind != "all" {
		filter["type"] = kind
	}
	if !utils.HasRole(info.Role, reviewerRoles...) {
		filter["requestedBy"] = info.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := approvalCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("ListApprovals - count failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch approvals")
		return
	}
	cursor, err := approvalCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("ListApprovals - Find failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch approvals")
		return
	}
	defer cursor.Close(ctx)

	var approvals []models.Approval
	if err = cursor.All(ctx, &approvals); err != nil {
		log.Printf("ListApprovals - cursor.All failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to decode approvals")
		return
	}
	if approvals == nil {
		approvals = []models.Approval{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(approvals, total, page))
}

func GetApproval(w http.ResponseWriter, r *http.Request) {
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

	a, err := loadApproval(ctx, id)
	if err != nil {
		respondServiceError(w, err, "Failed to fetch approval")
		return
	}
	if !utils.HasRole(info.Role, reviewerRoles...) && a.RequestedBy != info.UserID {
		utils.RespondWithError(w, http.StatusForbidden, "you can only view your own requests")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, a)
}

type reviewRequest struct {
	Comments string `json:"comments" validate:"max=2000"`
}

func ApproveApproval(w http.ResponseWriter, r *http.Request) {
	reviewApproval(w, r, models.ApprovalApproved)
}

func RejectApproval(w http.ResponseWriter, r *http.Request) {
	reviewApproval(w, r, models.ApprovalRejected)
}

// checkReviewable enforces the single-shot review rules.
func checkReviewable(a *models.Approval, reviewer primitive.ObjectID) error {
	if a.Status != models.ApprovalPending {
		return conflict("approval has already been %s", a.Status)
	}
	if a.RequestedBy == reviewer {
		return forbidden("you cannot review your own request")
	}
	return nil
}

func reviewApproval(w http.ResponseWriter, r *http.Request, decision string) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
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

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := loadApproval(ctx, id)
	if err != nil {
		respondServiceError(w, err, "Failed to review approval")
		return
	}
	if err := checkReviewable(a, info.UserID); err != nil {
		respondServiceError(w, err, "")
		return
	}

	// Flip the status first; the pending guard makes the review single-shot.
	now := time.Now().UTC()
	var reviewed models.Approval
	err = approvalCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ApprovalPending},
		bson.M{"$set": bson.M{
			"status":     decision,
			"reviewerId": info.UserID,
			"comments":   req.Comments,
			"reviewedAt": now,
			"updatedAt":  now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&reviewed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = conflict("approval has already been reviewed")
		}
		respondServiceError(w, err, "Failed to review approval")
		return
	}

	if err := applyApprovalOutcome(ctx, &reviewed, info.UserID, now); err != nil {
		// Put the approval back so it can be reviewed again once the entity is fixed.
		if _, rerr := approvalCollection.UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": models.ApprovalPending, "updatedAt": now},
				"$unset": bson.M{"reviewerId": "", "reviewedAt": "", "comments": ""}}); rerr != nil {
			log.Printf("revert approval %s: %v", id.Hex(), rerr)
		}
		respondServiceError(w, err, "Failed to apply approval")
		return
	}

	recordAudit(ctx, r, "approval_"+decision, "approval", id,
		bson.M{"type": reviewed.Type, "entityId": reviewed.EntityID, "comments": req.Comments})
	kind := "success"
	if decision == models.ApprovalRejected {
		kind = "warning"
	}
	notifyUser(ctx, reviewed.RequestedBy, "Request "+decision,
		fmt.Sprintf("%s was %s by %s", reviewed.Title, decision, info.Name), kind, "/approvals/"+id.Hex())
	utils.RespondWithJSON(w, http.StatusOK, reviewed)
}

// CancelApproval withdraws a pending request. Only the requester may cancel.
func CancelApproval(w http.ResponseWriter, r *http.Request) {
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

	a, err := loadApproval(ctx, id)
	if err != nil {
		respondServiceError(w, err, "Failed to cancel approval")
		return
	}
	if a.RequestedBy != info.UserID {
		utils.RespondWithError(w, http.StatusForbidden, "only the requester can cancel this request")
		return
	}

	now := time.Now().UTC()
	var cancelled models.Approval
	err = approvalCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ApprovalPending},
		bson.M{"$set": bson.M{"status": models.ApprovalCancelled, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&cancelled)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = conflict("only pending requests can be cancelled")
		}
		respondServiceError(w, err, "Failed to cancel approval")
		return
	}
	if err := applyApprovalOutcome(ctx, &cancelled, info.UserID, now); err != nil {
		log.Printf("cancel approval %s side effect: %v", id.Hex(), err)
	}

	recordAudit(ctx, r, "approval_cancel", "approval", id, bson.M{"type": a.Type, "entityId": a.EntityID})
	utils.RespondWithJSON(w, http.StatusOK, cancelled)
}

// applyApprovalOutcome carries a decided approval over to the entity it guards.
func applyApprovalOutcome(ctx context.Context, a *models.Approval, actor primitive.ObjectID, now time.Time) error {
	switch a.Type {
	case models.ApprovalTransfer:
		return applyTransferOutcome(ctx, a.EntityID, a.Status, now)
	case models.ApprovalDisposal:
		return applyDisposalOutcome(ctx, a.EntityID, a.Status, actor, now)
	case models.ApprovalPurchaseOrder:
		return applyPurchaseOrderOutcome(ctx, a.EntityID, a.Status, now)
	}
	return invalidState("unknown approval type %q", a.Type)
}
