package handlers

import (
	"context"
	"errors"
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

type vendorRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	ContactPerson string  `json:"contactPerson"`
	Email         string  `json:"email" validate:"omitempty,email"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	Website       string  `json:"website" validate:"omitempty,url"`
	Category      string  `json:"category"`
	Rating        float64 `json:"rating" validate:"gte=0,lte=5"`
	Status        string  `json:"status" validate:"omitempty,oneof=active inactive blacklisted"`
	Notes         string  `json:"notes"`
}

func loadVendor(ctx context.Context, id primitive.ObjectID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := vendorCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&vendor); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("vendor")
		}
		return nil, err
	}
	return &vendor, nil
}

func ListVendors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if status := q.Get("status"); status != "" && status != "all" {
		filter["status"] = status
	}
	if category := q.Get("category"); category != "" {
		filter["category"] = category
	}
	if s := q.Get("search"); strings.TrimSpace(s) != "" {
		re := containsRegex(s)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"contactPerson": re}, bson.M{"email": re}}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := vendorCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("vendors count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch vendors")
		return
	}
	cursor, err := vendorCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Printf("vendors find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch vendors")
		return
	}
	defer cursor.Close(ctx)

	var vendors []models.Vendor
	if err := cursor.All(ctx, &vendors); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode vendors")
		return
	}
	if vendors == nil {
		vendors = []models.Vendor{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(vendors, total, page))
}

func GetVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vendor, err := loadVendor(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch vendor")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, vendor)
}

func CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req vendorRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	vendor := models.Vendor{
		ID:            primitive.NewObjectID(),
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Email:         strings.ToLower(req.Email),
		Phone:         req.Phone,
		Address:       req.Address,
		Website:       req.Website,
		Category:      req.Category,
		Rating:        req.Rating,
		Status:        req.Status,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if vendor.Status == "" {
		vendor.Status = models.VendorActive
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := vendorCollection.InsertOne(ctx, vendor); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = conflict("vendor %q already exists", vendor.Name)
		}
		respondServiceError(w, err, "failed to create vendor")
		return
	}

	recordAudit(ctx, r, "vendor_create", "vendor", vendor.ID, bson.M{"name": vendor.Name})
	utils.RespondWithJSON(w, http.StatusCreated, vendor)
}

// UpdateVendor replaces the editable fields of a vendor.
func UpdateVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req vendorRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = models.VendorActive
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	set := bson.M{
		"name":          req.Name,
		"contactPerson": req.ContactPerson,
		"email":         strings.ToLower(req.Email),
		"phone":         req.Phone,
		"address":       req.Address,
		"website":       req.Website,
		"category":      req.Category,
		"rating":        req.Rating,
		"status":        req.Status,
		"notes":         req.Notes,
		"updatedAt":     time.Now().UTC(),
	}
	var updated models.Vendor
	err := vendorCollection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			err = notFound("vendor")
		case mongo.IsDuplicateKeyError(err):
			err = conflict("vendor %q already exists", req.Name)
		}
		respondServiceError(w, err, "failed to update vendor")
		return
	}

	recordAudit(ctx, r, "vendor_update", "vendor", id, bson.M{"name": updated.Name, "status": updated.Status})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func DeleteVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pos, err := purchaseOrderCollection.CountDocuments(ctx, bson.M{"vendorId": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete vendor")
		return
	}
	if pos > 0 {
		respondServiceError(w, conflict("vendor is referenced by %d purchase orders", pos), "")
		return
	}

	res, err := vendorCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete vendor")
		return
	}
	if res.DeletedCount == 0 {
		respondServiceError(w, notFound("vendor"), "")
		return
	}

	recordAudit(ctx, r, "vendor_delete", "vendor", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Vendor deleted"})
}

type VendorStats struct {
	VendorID           primitive.ObjectID `json:"vendorId"`
	AssetCount         int64              `json:"assetCount"`
	PurchaseOrderCount int64              `json:"purchaseOrderCount"`
	TotalSpend         decimal.Decimal    `json:"totalSpend"`
	OutstandingInvoice decimal.Decimal    `json:"outstandingInvoices"`
}

// sumField runs a $group sum over field for documents matching match.
func sumField(ctx context.Context, coll *mongo.Collection, match bson.M, field string) (decimal.Decimal, error) {
	cursor, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$" + field}}}},
	})
	if err != nil {
		return decimal.Zero, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total decimal.Decimal `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Total, nil
}

func GetVendorStats(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := loadVendor(ctx, id); err != nil {
		respondServiceError(w, err, "failed to fetch vendor stats")
		return
	}

	stats := VendorStats{VendorID: id}
	var err error
	if stats.AssetCount, err = assetCollection.CountDocuments(ctx, bson.M{"vendorId": id}); err != nil {
		respondServiceError(w, err, "failed to fetch vendor stats")
		return
	}
	if stats.PurchaseOrderCount, err = purchaseOrderCollection.CountDocuments(ctx, bson.M{"vendorId": id}); err != nil {
		respondServiceError(w, err, "failed to fetch vendor stats")
		return
	}
	spendStatuses := bson.M{"$in": []string{models.POApproved, models.POOrdered, models.POReceived}}
	if stats.TotalSpend, err = sumField(ctx, purchaseOrderCollection,
		bson.M{"vendorId": id, "status": spendStatuses}, "totalAmount"); err != nil {
		respondServiceError(w, err, "failed to fetch vendor stats")
		return
	}
	if stats.OutstandingInvoice, err = sumField(ctx, invoiceCollection,
		bson.M{"vendorId": id, "status": bson.M{"$in": []string{models.InvoiceUnpaid, models.InvoiceOverdue}}}, "totalAmount"); err != nil {
		respondServiceError(w, err, "failed to fetch vendor stats")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}
