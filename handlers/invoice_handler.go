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

type invoiceRequest struct {
	InvoiceNumber   string          `json:"invoiceNumber" validate:"max=64"`
	VendorID        string          `json:"vendorId" validate:"required"`
	PurchaseOrderID string          `json:"purchaseOrderId"`
	Amount          decimal.Decimal `json:"amount" validate:"gte=0"`
	TaxAmount       decimal.Decimal `json:"taxAmount" validate:"gte=0"`
	IssueDate       time.Time       `json:"issueDate" validate:"required"`
	DueDate         time.Time       `json:"dueDate" validate:"required"`
	Notes           string          `json:"notes"`
}

type payInvoiceRequest struct {
	PaidAt *time.Time `json:"paidAt"`
}

func loadInvoice(ctx context.Context, id primitive.ObjectID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := invoiceCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("invoice")
		}
		return nil, err
	}
	return &inv, nil
}

// invoiceFromRequest checks references and dates and returns the invoice
// fields the request controls.
func invoiceFromRequest(ctx context.Context, req invoiceRequest) (*models.Invoice, int, error) {
	vendorID, err := primitive.ObjectIDFromHex(req.VendorID)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid vendorId")
	}
	poID, err := utils.ParseOptionalObjectID(req.PurchaseOrderID)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid purchaseOrderId")
	}
	if req.DueDate.Before(req.IssueDate) {
		return nil, http.StatusBadRequest, fmt.Errorf("dueDate cannot be before issueDate")
	}
	if _, err := loadVendor(ctx, vendorID); err != nil {
		return nil, 0, err
	}
	if poID != nil {
		po, err := loadPurchaseOrder(ctx, *poID)
		if err != nil {
			return nil, 0, err
		}
		if po.VendorID != vendorID {
			return nil, 0, invalidState("purchase order %s belongs to a different vendor", po.PONumber)
		}
	}

	inv := &models.Invoice{
		InvoiceNumber:   strings.TrimSpace(req.InvoiceNumber),
		VendorID:        vendorID,
		PurchaseOrderID: poID,
		Amount:          req.Amount,
		TaxAmount:       req.TaxAmount,
		IssueDate:       req.IssueDate.UTC(),
		DueDate:         req.DueDate.UTC(),
		Notes:           req.Notes,
	}
	inv.RecalculateTotal()
	return inv, 0, nil
}

func ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if status := q.Get("status"); status != "" && status != "all" {
		filter["status"] = status
	}
	for _, key := range []string{"vendorId", "purchaseOrderId"} {
		if v := q.Get(key); v != "" {
			id, err := primitive.ObjectIDFromHex(v)
			if err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, "invalid "+key)
				return
			}
			filter[key] = id
		}
	}
	rng, err := dateRange(q)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rng != nil {
		filter["issueDate"] = rng
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := invoiceCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("invoices count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch invoices")
		return
	}
	cursor, err := invoiceCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "dueDate", Value: -1}}))
	if err != nil {
		log.Printf("invoices find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch invoices")
		return
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode invoices")
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(invoices, total, page))
}

func GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	inv, err := loadInvoice(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch invoice")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, inv)
}

func CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
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

	inv, status, err := invoiceFromRequest(ctx, req)
	if err != nil {
		if status != 0 {
			utils.RespondWithError(w, status, err.Error())
			return
		}
		respondServiceError(w, err, "failed to create invoice")
		return
	}

	now := time.Now().UTC()
	inv.ID = primitive.NewObjectID()
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = utils.NewInvoiceNumber(now)
	}
	inv.Status = models.InvoiceUnpaid
	if inv.DueDate.Before(now) {
		inv.Status = models.InvoiceOverdue
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now

	if _, err := invoiceCollection.InsertOne(ctx, inv); err != nil {
		respondServiceError(w, err, "failed to create invoice")
		return
	}

	recordAudit(ctx, r, "invoice_create", "invoice", inv.ID,
		bson.M{"invoiceNumber": inv.InvoiceNumber, "total": inv.TotalAmount.String()})
	utils.RespondWithJSON(w, http.StatusCreated, inv)
}

// UpdateInvoice replaces the editable fields of an open invoice.
func UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req invoiceRequest
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

	existing, err := loadInvoice(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to update invoice")
		return
	}
	if existing.Status == models.InvoicePaid || existing.Status == models.InvoiceCancelled {
		respondServiceError(w, invalidState("invoice is %s and can no longer be edited", existing.Status), "")
		return
	}

	inv, status, err := invoiceFromRequest(ctx, req)
	if err != nil {
		if status != 0 {
			utils.RespondWithError(w, status, err.Error())
			return
		}
		respondServiceError(w, err, "failed to update invoice")
		return
	}

	now := time.Now().UTC()
	inv.ID = id
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = existing.InvoiceNumber
	}
	inv.Status = models.InvoiceUnpaid
	if inv.DueDate.Before(now) {
		inv.Status = models.InvoiceOverdue
	}
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = now

	res, err := invoiceCollection.ReplaceOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []string{models.InvoiceUnpaid, models.InvoiceOverdue}}}, inv)
	if err != nil {
		respondServiceError(w, err, "failed to update invoice")
		return
	}
	if res.MatchedCount == 0 {
		respondServiceError(w, conflict("invoice changed state, reload and retry"), "")
		return
	}

	recordAudit(ctx, r, "invoice_update", "invoice", id, bson.M{"total": inv.TotalAmount.String()})
	utils.RespondWithJSON(w, http.StatusOK, inv)
}

func DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := invoiceCollection.DeleteOne(ctx, bson.M{"_id": id, "status": bson.M{"$ne": models.InvoicePaid}})
	if err != nil {
		respondServiceError(w, err, "failed to delete invoice")
		return
	}
	if res.DeletedCount == 0 {
		if _, lerr := loadInvoice(ctx, id); lerr != nil {
			respondServiceError(w, lerr, "failed to delete invoice")
			return
		}
		respondServiceError(w, invalidState("paid invoices cannot be deleted"), "")
		return
	}

	recordAudit(ctx, r, "invoice_delete", "invoice", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Invoice deleted"})
}

// PayInvoice records payment of an unpaid or overdue invoice.
func PayInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req payInvoiceRequest
	if r.ContentLength != 0 {
		if err := utils.ParseJSON(r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	now := time.Now().UTC()
	paidAt := now
	if req.PaidAt != nil {
		if req.PaidAt.After(now) {
			utils.RespondWithError(w, http.StatusBadRequest, "paidAt cannot be in the future")
			return
		}
		paidAt = req.PaidAt.UTC()
	}

	var updated models.Invoice
	err := invoiceCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []string{models.InvoiceUnpaid, models.InvoiceOverdue}}},
		bson.M{"$set": bson.M{"status": models.InvoicePaid, "paidAt": paidAt, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			inv, lerr := loadInvoice(ctx, id)
			if lerr != nil {
				err = lerr
			} else {
				err = invalidState("invoice is already %s", inv.Status)
			}
		}
		respondServiceError(w, err, "failed to pay invoice")
		return
	}

	recordAudit(ctx, r, "invoice_pay", "invoice", id, bson.M{"total": updated.TotalAmount.String()})
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func overdueInvoiceFilter(now time.Time) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"status": models.InvoiceOverdue},
			bson.M{"status": models.InvoiceUnpaid, "dueDate": bson.M{"$lt": now}},
		},
	}
}

func GetOverdueInvoices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cursor, err := invoiceCollection.Find(ctx, overdueInvoiceFilter(time.Now().UTC()),
		options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}}).SetLimit(int64(utils.MaxLimit)))
	if err != nil {
		log.Printf("overdue invoices error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch overdue invoices")
		return
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode invoices")
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	utils.RespondWithJSON(w, http.StatusOK, invoices)
}

// SweepOverdueInvoices flips unpaid invoices past their due date to overdue.
func SweepOverdueInvoices(ctx context.Context, now time.Time) (int64, error) {
	res, err := invoiceCollection.UpdateMany(ctx,
		bson.M{"status": models.InvoiceUnpaid, "dueDate": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.InvoiceOverdue, "updatedAt": now}})
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	if res.ModifiedCount > 0 {
		recordSystemAudit(ctx, "invoice_overdue_sweep", "invoice", primitive.NilObjectID,
			bson.M{"count": res.ModifiedCount})
		notifyRole(ctx, []string{models.RoleAdmin, models.RoleInventoryManager}, "Invoices overdue",
			fmt.Sprintf("%d invoices passed their due date", res.ModifiedCount),
			"warning", "/invoices?status=overdue")
	}
	return res.ModifiedCount, nil
}
