package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/models"
	"deadstock/reports"
	"deadstock/utils"
)

type reportTemplateRequest struct {
	Name    string            `json:"name" validate:"required,max=200"`
	Type    string            `json:"type" validate:"required,oneof=asset_inventory dead_stock maintenance vendor purchase_orders audit_runs"`
	Filters map[string]string `json:"filters"`
	Columns []string          `json:"columns"`
	Format  string            `json:"format" validate:"omitempty,oneof=csv json text"`
}

// emptyReport is the layout of a report type with no rows, used to check
// template columns against what the builder produces.
func emptyReport(reportType string) reports.Table {
	var zero time.Time
	switch reportType {
	case models.ReportAssetInventory:
		return assetInventoryTable(nil, "", zero)
	case models.ReportDeadStock:
		return deadStockTable(nil, "", zero)
	case models.ReportMaintenance:
		return maintenanceTable(nil, nil, zero)
	case models.ReportVendor:
		return vendorTable(nil, nil, zero)
	case models.ReportPurchaseOrders:
		return purchaseOrderTable(nil, nil, zero)
	case models.ReportAuditRuns:
		return auditRunTable(nil, zero)
	}
	return reports.Table{}
}

func checkColumns(reportType string, cols []string) error {
	_, err := emptyReport(reportType).Select(cols)
	return err
}

func loadReportTemplate(ctx context.Context, id primitive.ObjectID) (*models.ReportTemplate, error) {
	var tpl models.ReportTemplate
	if err := reportTemplateCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&tpl); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("report template")
		}
		return nil, err
	}
	return &tpl, nil
}

func ListReportTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)
	filter := bson.M{}
	if t := q.Get("type"); t != "" && t != "all" {
		filter["type"] = t
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := reportTemplateCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("report templates count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch report templates")
		return
	}
	cursor, err := reportTemplateCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Printf("report templates find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch report templates")
		return
	}
	defer cursor.Close(ctx)

	var templates []models.ReportTemplate
	if err := cursor.All(ctx, &templates); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode report templates")
		return
	}
	if templates == nil {
		templates = []models.ReportTemplate{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(templates, total, page))
}

func GetReportTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tpl, err := loadReportTemplate(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch report template")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, tpl)
}

func parseTemplateRequest(w http.ResponseWriter, r *http.Request) (*reportTemplateRequest, bool) {
	var req reportTemplateRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return nil, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := checkColumns(req.Type, req.Columns); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if req.Format == "" {
		req.Format = "csv"
	}
	return &req, true
}

func CreateReportTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	req, ok := parseTemplateRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	now := time.Now().UTC()
	tpl := models.ReportTemplate{
		ID:        primitive.NewObjectID(),
		Name:      req.Name,
		Type:      req.Type,
		Filters:   req.Filters,
		Columns:   req.Columns,
		Format:    req.Format,
		CreatedBy: info.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := reportTemplateCollection.InsertOne(ctx, tpl); err != nil {
		respondServiceError(w, err, "failed to create report template")
		return
	}

	recordAudit(ctx, r, "report_template_create", "report_template", tpl.ID, bson.M{"type": tpl.Type})
	utils.RespondWithJSON(w, http.StatusCreated, tpl)
}

func UpdateReportTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	req, ok := parseTemplateRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	set := bson.M{
		"name":      req.Name,
		"type":      req.Type,
		"filters":   req.Filters,
		"columns":   req.Columns,
		"format":    req.Format,
		"updatedAt": time.Now().UTC(),
	}
	res, err := reportTemplateCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		respondServiceError(w, err, "failed to update report template")
		return
	}
	if res.MatchedCount == 0 {
		respondServiceError(w, notFound("report template"), "")
		return
	}

	tpl, err := loadReportTemplate(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch report template")
		return
	}
	recordAudit(ctx, r, "report_template_update", "report_template", id, bson.M{"type": req.Type})
	utils.RespondWithJSON(w, http.StatusOK, tpl)
}

func DeleteReportTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := reportTemplateCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete report template")
		return
	}
	if res.DeletedCount == 0 {
		respondServiceError(w, notFound("report template"), "")
		return
	}

	recordAudit(ctx, r, "report_template_delete", "report_template", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Report template deleted"})
}

// GenerateReport renders /api/reports/{type}. Query params other than format
// and columns are passed to the report as filters.
func GenerateReport(w http.ResponseWriter, r *http.Request) {
	reportType := mux.Vars(r)["type"]
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}
	var cols []string
	if raw := q.Get("columns"); raw != "" {
		cols = strings.Split(raw, ",")
	}
	filters := url.Values{}
	for k, v := range q {
		if k != "format" && k != "columns" {
			filters[k] = v
		}
	}
	writeReport(w, r, reportType, format, filters, cols)
}

// GenerateFromTemplate renders a saved template; ?format overrides the stored format.
func GenerateFromTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tpl, err := loadReportTemplate(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to load report template")
		return
	}
	format := tpl.Format
	if f := r.URL.Query().Get("format"); f != "" {
		format = f
	}
	filters := url.Values{}
	for k, v := range tpl.Filters {
		filters.Set(k, v)
	}
	writeReport(w, r, tpl.Type, format, filters, tpl.Columns)
}

func validFormat(format string) bool {
	for _, f := range models.ReportFormats {
		if f == format {
			return true
		}
	}
	return false
}

func writeReport(w http.ResponseWriter, r *http.Request, reportType, format string, filters url.Values, cols []string) {
	build, ok := reportBuilders[reportType]
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "unknown report type: "+reportType)
		return
	}
	if !validFormat(format) {
		utils.RespondWithError(w, http.StatusBadRequest, "format must be one of csv, json, text")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	table, err := build(ctx, filters, now)
	if err != nil {
		if errors.Is(err, errBadReportFilter) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err, "failed to generate report")
		return
	}
	table, err = table.Select(cols)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := reports.Render(format, table)
	if err != nil {
		respondServiceError(w, err, "failed to render report")
		return
	}

	recordAudit(ctx, r, "report_generate", "report", primitive.NilObjectID,
		bson.M{"type": reportType, "format": format, "rows": len(table.Rows)})

	w.Header().Set("Content-Type", reports.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename="+reports.Filename(reportType, format, now))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("write report %s: %v", reportType, err)
	}
}
