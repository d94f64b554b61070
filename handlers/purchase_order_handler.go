package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
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

// maxUnitsPerReceipt caps how many assets a single receipt may create.
const maxUnitsPerReceipt = 500

type poItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity" validate:"gte=1,lte=10000"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

type purchaseOrderRequest struct {
	VendorID         string          `json:"vendorId" validate:"required"`
	Items            []poItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxRate          decimal.Decimal `json:"taxRate" validate:"gte=0,lte=100"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery"`
	Notes            string          `json:"notes"`
}

type receiveRequest struct {
	CreateAssets bool   `json:"createAssets"`
	Location     string `json:"location"`
	Department   string `json:"department"`
}

func loadPurchaseOrder(ctx context.Context, id primitive.ObjectID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	if err := purchaseOrderCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&po); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("purchase order")
		}
		return nil, err
	}
	return &po, nil
}

// buildItems copies request items into the model; totals are always derived.
func buildItems(in []poItemRequest) []models.POItem {
	items := make([]models.POItem, 0, len(in))
	for _, it := range in {
		items = append(items, models.POItem{
			Description: strings.TrimSpace(it.Description),
			Category:    strings.TrimSpace(it.Category),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return items
}

var errBadVendorID = errors.New("invalid vendorId")

// checkOrderVendor rejects unknown or blacklisted vendors.
func checkOrderVendor(ctx context.Context, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, errBadVendorID
	}
	vendor, err := loadVendor(ctx, id)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if vendor.Status == models.VendorBlacklisted {
		return primitive.NilObjectID, invalidState("vendor %s is blacklisted", vendor.Name)
	}
	return id, nil
}

func ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if status := q.Get("status"); status != "" && status != "all" {
		filter["status"] = status
	}
	if v := q.Get("vendorId"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid vendorId")
			return
		}
		filter["vendorId"] = id
	}
	if s := q.Get("search"); strings.TrimSpace(s) != "" {
		filter["poNumber"] = containsRegex(s)
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := purchaseOrderCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("purchase orders count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch purchase orders")
		return
	}
	cursor, err := purchaseOrderCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("purchase orders find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch purchase orders")
		return
	}
	defer cursor.Close(ctx)

	var orders []models.PurchaseOrder
	if err := cursor.All(ctx, &orders); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode purchase orders")
		return
	}
	if orders == nil {
		orders = []models.PurchaseOrder{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(orders, total, page))
}

func GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	po, err := loadPurchaseOrder(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch purchase order")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, po)
}

func CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	var req purchaseOrderRequest
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

	vendorID, err := checkOrderVendor(ctx, req.VendorID)
	if err != nil {
		if errors.Is(err, errBadVendorID) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err, "failed to create purchase order")
		return
	}

	now := time.Now().UTC()
	po := models.PurchaseOrder{
		ID:               primitive.NewObjectID(),
		PONumber:         utils.NewPONumber(now),
		VendorID:         vendorID,
		Items:            buildItems(req.Items),
		TaxRate:          req.TaxRate,
		Status:           models.PODraft,
		ExpectedDelivery: req.ExpectedDelivery,
		RequestedBy:      info.UserID,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	po.RecalculateTotals()

	if _, err := purchaseOrderCollection.InsertOne(ctx, po); err != nil {
		respondServiceError(w, err, "failed to create purchase order")
		return
	}

	recordAudit(ctx, r, "purchase_order_create", "purchase_order", po.ID,
		bson.M{"poNumber": po.PONumber, "total": po.TotalAmount.String()})
	utils.RespondWithJSON(w, http.StatusCreated, po)
}

// UpdatePurchaseOrder replaces vendor, items and terms of a draft order.
func UpdatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req purchaseOrderRequest
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

	po, err := loadPurchaseOrder(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to update purchase order")
		return
	}
	if po.Status != models.PODraft {
		respondServiceError(w, invalidState("only draft purchase orders can be edited"), "")
		return
	}
	vendorID, err := checkOrderVendor(ctx, req.VendorID)
	if err != nil {
		if errors.Is(err, errBadVendorID) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err, "failed to update purchase order")
		return
	}

	po.VendorID = vendorID
	po.Items = buildItems(req.Items)
	po.TaxRate = req.TaxRate
	po.ExpectedDelivery = req.ExpectedDelivery
	po.Notes = req.Notes
	po.UpdatedAt = time.Now().UTC()
	po.RecalculateTotals()

	res, err := purchaseOrderCollection.ReplaceOne(ctx, bson.M{"_id": id, "status": models.PODraft}, po)
	if err != nil {
		respondServiceError(w, err, "failed to update purchase order")
		return
	}
	if res.MatchedCount == 0 {
		respondServiceError(w, conflict("purchase order changed state, reload and retry"), "")
		return
	}

	recordAudit(ctx, r, "purchase_order_update", "purchase_order", id, bson.M{"total": po.TotalAmount.String()})
	utils.RespondWithJSON(w, http.StatusOK, po)
}

func DeletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := purchaseOrderCollection.DeleteOne(ctx, bson.M{"_id": id, "status": models.PODraft})
	if err != nil {
		respondServiceError(w, err, "failed to delete purchase order")
		return
	}
	if res.DeletedCount == 0 {
		if _, lerr := loadPurchaseOrder(ctx, id); lerr != nil {
			respondServiceError(w, lerr, "failed to delete purchase order")
			return
		}
		respondServiceError(w, invalidState("only draft purchase orders can be deleted"), "")
		return
	}

	recordAudit(ctx, r, "purchase_order_delete", "purchase_order", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Purchase order deleted"})
}

// SubmitPurchaseOrder sends a draft for approval.
func SubmitPurchaseOrder(w http.ResponseWriter, r *http.Request) {
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

	po, err := loadPurchaseOrder(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to submit purchase order")
		return
	}
	if po.Status != models.PODraft {
		respondServiceError(w, invalidState("purchase order is %s, only drafts can be submitted", po.Status), "")
		return
	}
	if len(po.Items) == 0 {
		respondServiceError(w, invalidState("purchase order has no items"), "")
		return
	}

	now := time.Now().UTC()
	approval := newApproval(models.ApprovalPurchaseOrder,
		fmt.Sprintf("Purchase order %s (%s)", po.PONumber, po.TotalAmount.StringFixed(2)),
		"purchase_order", po.ID, info.UserID, now)

	var updated models.PurchaseOrder
	err = purchaseOrderCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.PODraft},
		bson.M{"$set": bson.M{"status": models.POPendingApproval, "approvalId": approval.ID, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = conflict("purchase order changed state, reload and retry")
		}
		respondServiceError(w, err, "failed to submit purchase order")
		return
	}
	if err := insertApproval(ctx, approval); err != nil {
		if _, rerr := purchaseOrderCollection.UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": models.PODraft}, "$unset": bson.M{"approvalId": ""}}); rerr != nil {
			log.Printf("rollback purchase order %s: %v", id.Hex(), rerr)
		}
		respondServiceError(w, err, "failed to submit purchase order")
		return
	}

	recordAudit(ctx, r, "purchase_order_submit", "purchase_order", id, bson.M{"approvalId": approval.ID})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// transitionPurchaseOrder applies set when the order is in one of the from states.
func transitionPurchaseOrder(ctx context.Context, id primitive.ObjectID, from []string, set bson.M) (*models.PurchaseOrder, error) {
	var updated models.PurchaseOrder
	err := purchaseOrderCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	po, lerr := loadPurchaseOrder(ctx, id)
	if lerr != nil {
		return nil, lerr
	}
	return nil, invalidState("purchase order is %s, expected one of %s", po.Status, strings.Join(from, ", "))
}

// OrderPurchaseOrder records that an approved order was placed with the vendor.
func OrderPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	po, err := transitionPurchaseOrder(ctx, id, []string{models.POApproved},
		bson.M{"status": models.POOrdered, "updatedAt": time.Now().UTC()})
	if err != nil {
		respondServiceError(w, err, "failed to order purchase order")
		return
	}

	recordAudit(ctx, r, "purchase_order_order", "purchase_order", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, po)
}

// assetsFromOrder builds one asset per received unit.
func assetsFromOrder(po *models.PurchaseOrder, req receiveRequest, createdBy primitive.ObjectID, now time.Time) []models.Asset {
	assets := make([]models.Asset, 0, po.UnitCount())
	vendorID := po.VendorID
	poID := po.ID
	received := now
	for _, item := range po.Items {
		category := item.Category
		if category == "" {
			category = "Uncategorized"
		}
		for i := 0; i < item.Quantity; i++ {
			assets = append(assets, models.Asset{
				ID:              primitive.NewObjectID(),
				AssetTag:        utils.NewAssetTag(),
				Name:            item.Description,
				Category:        category,
				Location:        req.Location,
				Department:      req.Department,
				Status:          models.AssetAvailable,
				Condition:       models.ConditionNew,
				VendorID:        &vendorID,
				PurchaseOrderID: &poID,
				PurchaseDate:    &received,
				PurchaseCost:    item.UnitPrice,
				SalvageValue:    decimal.Zero,
				Notes:           "Received on " + po.PONumber,
				CreatedBy:       createdBy,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}
	return assets
}

// revertReceipt undoes a receipt whose asset inserts failed: any assets that
// made it in are removed and the order goes back to its previous status. The
// update only matches the receipt stamped at receivedAt.
func revertReceipt(poID primitive.ObjectID, previous string, created []models.Asset, receivedAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ids := make([]primitive.ObjectID, len(created))
	for i := range created {
		ids[i] = created[i].ID
	}
	if _, err := assetCollection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("delete partial assets: %w", err)
	}
	_, err := purchaseOrderCollection.UpdateOne(ctx,
		bson.M{"_id": poID, "status": models.POReceived, "receivedAt": receivedAt},
		bson.M{
			"$set":   bson.M{"status": previous, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"receivedAt": ""},
		})
	return err
}

// ReceivePurchaseOrder marks goods as received and optionally registers them as assets.
func ReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req receiveRequest
	if r.ContentLength != 0 {
		if err := utils.ParseJSON(r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	current, err := loadPurchaseOrder(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to receive purchase order")
		return
	}
	if req.CreateAssets && current.UnitCount() > maxUnitsPerReceipt {
		respondServiceError(w, invalidState("order has %d units, at most %d can be registered at once",
			current.UnitCount(), maxUnitsPerReceipt), "")
		return
	}

	// millisecond precision so the stored receivedAt can be matched on rollback
	now := time.Now().UTC().Truncate(time.Millisecond)
	po, err := transitionPurchaseOrder(ctx, id, []string{models.POApproved, models.POOrdered},
		bson.M{"status": models.POReceived, "receivedAt": now, "updatedAt": now})
	if err != nil {
		respondServiceError(w, err, "failed to receive purchase order")
		return
	}

	created := []models.Asset{}
	if req.CreateAssets {
		created = assetsFromOrder(po, req, info.UserID, now)
		docs := make([]interface{}, len(created))
		for i := range created {
			docs[i] = created[i]
		}
		if len(docs) > 0 {
			if _, err := assetCollection.InsertMany(ctx, docs); err != nil {
				log.Printf("create assets from %s: %v", po.PONumber, err)
				if rerr := revertReceipt(po.ID, current.Status, created, now); rerr != nil {
					log.Printf("revert receipt of %s: %v", po.PONumber, rerr)
				}
				utils.RespondWithError(w, http.StatusInternalServerError,
					"assets could not be created, receipt was rolled back")
				return
			}
		}
	}

	recordAudit(ctx, r, "purchase_order_receive", "purchase_order", id,
		bson.M{"assetsCreated": len(created)})
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"purchaseOrder": po,
		"assets":        created,
	})
}

func CancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	now := time.Now().UTC()
	po, err := transitionPurchaseOrder(ctx, id,
		[]string{models.PODraft, models.POPendingApproval, models.POApproved, models.POOrdered},
		bson.M{"status": models.POCancelled, "updatedAt": now})
	if err != nil {
		respondServiceError(w, err, "failed to cancel purchase order")
		return
	}
	if po.ApprovalID != nil {
		if _, err := approvalCollection.UpdateOne(ctx,
			bson.M{"_id": *po.ApprovalID, "status": models.ApprovalPending},
			bson.M{"$set": bson.M{"status": models.ApprovalCancelled, "updatedAt": now}}); err != nil {
			log.Printf("cancel approval for %s: %v", po.PONumber, err)
		}
	}

	recordAudit(ctx, r, "purchase_order_cancel", "purchase_order", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, po)
}

func applyPurchaseOrderOutcome(ctx context.Context, poID primitive.ObjectID, decision string, now time.Time) error {
	update := bson.M{}
	switch decision {
	case models.ApprovalApproved:
		update["$set"] = bson.M{"status": models.POApproved, "updatedAt": now}
	case models.ApprovalRejected:
		update["$set"] = bson.M{"status": models.PODraft, "updatedAt": now}
		update["$unset"] = bson.M{"approvalId": ""}
	default:
		update["$set"] = bson.M{"status": models.POCancelled, "updatedAt": now}
	}
	res, err := purchaseOrderCollection.UpdateOne(ctx,
		bson.M{"_id": poID, "status": models.POPendingApproval}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return invalidState("purchase order is no longer awaiting approval")
	}
	return nil
}
