package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/utils"
)

const schedulerTrigger = "scheduler"

type scheduledAuditRequest struct {
	Name           string            `json:"name" validate:"required,max=200"`
	Description    string            `json:"description" validate:"max=2000"`
	Frequency      string            `json:"frequency" validate:"required,oneof=daily weekly monthly quarterly yearly custom"`
	CronExpression string            `json:"cronExpression"`
	Scope          models.AuditScope `json:"scope"`
	AuditorIDs     []string          `json:"auditorIds"`
	IsActive       *bool             `json:"isActive"`
	StartAt        *time.Time        `json:"startAt"`
}

type updateScheduledAuditRequest struct {
	Name           *string            `json:"name" validate:"omitempty,max=200"`
	Description    *string            `json:"description" validate:"omitempty,max=2000"`
	Frequency      *string            `json:"frequency" validate:"omitempty,oneof=daily weekly monthly quarterly yearly custom"`
	CronExpression *string            `json:"cronExpression"`
	Scope          *models.AuditScope `json:"scope"`
	AuditorIDs     *[]string          `json:"auditorIds"`
	IsActive       *bool              `json:"isActive"`
}

type findingRequest struct {
	AssetID   string `json:"assetId" validate:"required"`
	Found     *bool  `json:"found" validate:"required"`
	Condition string `json:"condition" validate:"omitempty,oneof=new good fair poor damaged"`
	Location  string `json:"location" validate:"max=200"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type completeRunRequest struct {
	MarkMissingLost bool `json:"markMissingLost"`
}

func loadScheduledAudit(ctx context.Context, id primitive.ObjectID) (*models.ScheduledAudit, error) {
	var a models.ScheduledAudit
	if err := scheduledAuditCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("scheduled audit")
		}
		return nil, err
	}
	return &a, nil
}

func loadAuditRun(ctx context.Context, id primitive.ObjectID) (*models.ScheduledAuditRun, error) {
	var run models.ScheduledAuditRun
	if err := auditRunCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&run); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("audit run")
		}
		return nil, err
	}
	return &run, nil
}

// parseAuditors turns hex ids into ObjectIDs and checks each one is an active user.
func parseAuditors(ctx context.Context, raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	seen := map[primitive.ObjectID]bool{}
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, invalidState("invalid auditor id %q", s)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ids, nil
	}
	n, err := userCollection.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}, "isActive": true})
	if err != nil {
		return nil, err
	}
	if n != int64(len(ids)) {
		return nil, invalidState("every auditor must be an active user")
	}
	return ids, nil
}

// firstRunAt is the initial nextRunAt for a new schedule.
func firstRunAt(a models.ScheduledAudit, startAt *time.Time, now time.Time) *time.Time {
	if startAt != nil && startAt.After(now) && a.Frequency != models.FrequencyCustom {
		t := startAt.UTC()
		return &t
	}
	next, ok := a.NextRun(now)
	if !ok {
		return nil
	}
	return &next
}

func ListScheduledAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if v := q.Get("isActive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "isActive must be true or false")
			return
		}
		filter["isActive"] = b
	}
	if f := q.Get("frequency"); f != "" && f != "all" {
		filter["frequency"] = f
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := scheduledAuditCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("scheduled audits count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch scheduled audits")
		return
	}
	cursor, err := scheduledAuditCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "nextRunAt", Value: 1}, {Key: "name", Value: 1}}))
	if err != nil {
		log.Printf("scheduled audits find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch scheduled audits")
		return
	}
	defer cursor.Close(ctx)

	var audits []models.ScheduledAudit
	if err := cursor.All(ctx, &audits); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode scheduled audits")
		return
	}
	if audits == nil {
		audits = []models.ScheduledAudit{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(audits, total, page))
}

func GetScheduledAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := loadScheduledAudit(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch scheduled audit")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, a)
}

func CreateScheduledAudit(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	var req scheduledAuditRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.CronExpression = strings.TrimSpace(req.CronExpression)
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	audit := models.ScheduledAudit{
		ID:             primitive.NewObjectID(),
		Name:           req.Name,
		Description:    req.Description,
		Frequency:      req.Frequency,
		CronExpression: req.CronExpression,
		Scope:          req.Scope,
		IsActive:       req.IsActive == nil || *req.IsActive,
		CreatedBy:      info.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if audit.Frequency != models.FrequencyCustom {
		audit.CronExpression = ""
	}
	if err := audit.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	auditors, err := parseAuditors(ctx, req.AuditorIDs)
	if err != nil {
		respondServiceError(w, err, "failed to create scheduled audit")
		return
	}
	audit.AuditorIDs = auditors
	audit.NextRunAt = firstRunAt(audit, req.StartAt, now)

	if _, err := scheduledAuditCollection.InsertOne(ctx, audit); err != nil {
		respondServiceError(w, err, "failed to create scheduled audit")
		return
	}

	recordAudit(ctx, r, "scheduled_audit_create", "scheduled_audit", audit.ID,
		bson.M{"name": audit.Name, "frequency": audit.Frequency})
	utils.RespondWithJSON(w, http.StatusCreated, audit)
}

func UpdateScheduledAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req updateScheduledAuditRequest
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

	audit, err := loadScheduledAudit(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to update scheduled audit")
		return
	}

	now := time.Now().UTC()
	reschedule := false
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		audit.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		audit.Description = *req.Description
	}
	if req.Frequency != nil && *req.Frequency != audit.Frequency {
		audit.Frequency = *req.Frequency
		reschedule = true
	}
	if req.CronExpression != nil && strings.TrimSpace(*req.CronExpression) != audit.CronExpression {
		audit.CronExpression = strings.TrimSpace(*req.CronExpression)
		reschedule = true
	}
	if audit.Frequency != models.FrequencyCustom {
		audit.CronExpression = ""
	}
	if req.Scope != nil {
		audit.Scope = *req.Scope
	}
	if req.AuditorIDs != nil {
		auditors, err := parseAuditors(ctx, *req.AuditorIDs)
		if err != nil {
			respondServiceError(w, err, "failed to update scheduled audit")
			return
		}
		audit.AuditorIDs = auditors
	}
	if req.IsActive != nil {
		if *req.IsActive && !audit.IsActive && (audit.NextRunAt == nil || audit.NextRunAt.Before(now)) {
			reschedule = true
		}
		audit.IsActive = *req.IsActive
	}
	if err := audit.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if reschedule {
		audit.NextRunAt = firstRunAt(*audit, nil, now)
	}
	audit.UpdatedAt = now

	if _, err := scheduledAuditCollection.ReplaceOne(ctx, bson.M{"_id": id}, audit); err != nil {
		respondServiceError(w, err, "failed to update scheduled audit")
		return
	}

	recordAudit(ctx, r, "scheduled_audit_update", "scheduled_audit", id,
		bson.M{"frequency": audit.Frequency, "isActive": audit.IsActive, "rescheduled": reschedule})
	utils.RespondWithJSON(w, http.StatusOK, audit)
}

// GetUpcomingScheduledAudits lists active schedules due within ?days, defaulting
// to the auditReminderDays setting.
func GetUpcomingScheduledAudits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var days int
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
		days = settings.AuditReminderDays
	}

	now := time.Now().UTC()
	cursor, err := scheduledAuditCollection.Find(ctx, bson.M{
		"isActive":  true,
		"nextRunAt": bson.M{"$gte": now, "$lte": now.AddDate(0, 0, days)},
	}, options.Find().SetSort(bson.D{{Key: "nextRunAt", Value: 1}}))
	if err != nil {
		log.Printf("upcoming scheduled audits error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch upcoming audits")
		return
	}
	defer cursor.Close(ctx)

	audits := []models.ScheduledAudit{}
	if err := cursor.All(ctx, &audits); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode upcoming audits")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, audits)
}

// DeleteScheduledAudit removes the schedule. Past runs are kept for reporting.
func DeleteScheduledAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := scheduledAuditCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete scheduled audit")
		return
	}
	if res.DeletedCount == 0 {
		respondServiceError(w, notFound("scheduled audit"), "")
		return
	}

	recordAudit(ctx, r, "scheduled_audit_delete", "scheduled_audit", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Scheduled audit deleted"})
}

// startAuditRun snapshots the assets in scope and stores a pending run.
func startAuditRun(ctx context.Context, audit *models.ScheduledAudit, triggeredBy string, now time.Time) (*models.ScheduledAuditRun, error) {
	cursor, err := assetCollection.Find(ctx, scopeFilter(audit.Scope),
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "assetTag", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("snapshot scope: %w", err)
	}
	defer cursor.Close(ctx)

	var assets []models.Asset
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, fmt.Errorf("decode scope: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}

	run := models.ScheduledAuditRun{
		ID:               primitive.NewObjectID(),
		ScheduledAuditID: audit.ID,
		Name:             audit.Name + " " + now.Format("2006-01-02 15:04"),
		Status:           models.RunPending,
		TriggeredBy:      triggeredBy,
		AssetIDs:         ids,
		Findings:         []models.AuditFinding{},
		StartedAt:        now,
	}
	run.Summary = run.Summarize(nil)
	if _, err := auditRunCollection.InsertOne(ctx, run); err != nil {
		return nil, fmt.Errorf("insert audit run: %w", err)
	}

	msg := fmt.Sprintf("%s is ready with %d assets to verify", run.Name, len(ids))
	link := "/audit-runs/" + run.ID.Hex()
	if len(audit.AuditorIDs) > 0 {
		notifyUsers(ctx, audit.AuditorIDs, "", "Audit run started", msg, "info", link)
	} else {
		notifyRole(ctx, []string{models.RoleAuditor}, "Audit run started", msg, "info", link)
	}
	return &run, nil
}

// RunScheduledAuditNow starts a run immediately without touching the schedule.
func RunScheduledAuditNow(w http.ResponseWriter, r *http.Request) {
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

	audit, err := loadScheduledAudit(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to start audit run")
		return
	}
	now := time.Now().UTC()
	run, err := startAuditRun(ctx, audit, info.UserID.Hex(), now)
	if err != nil {
		respondServiceError(w, err, "failed to start audit run")
		return
	}
	if _, err := scheduledAuditCollection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"lastRunAt": now, "updatedAt": now}}); err != nil {
		log.Printf("set lastRunAt on %s: %v", id.Hex(), err)
	}

	recordAudit(ctx, r, "audit_run_start", "scheduled_audit", id,
		bson.M{"runId": run.ID, "assets": len(run.AssetIDs)})
	utils.RespondWithJSON(w, http.StatusCreated, run)
}

func ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)
	filter := bson.M{"scheduledAuditId": id}
	if s := q.Get("status"); s != "" && s != "all" {
		filter["status"] = s
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := auditRunCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("audit runs count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch audit runs")
		return
	}
	cursor, err := auditRunCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "startedAt", Value: -1}}).
			SetProjection(bson.M{"findings": 0, "assetIds": 0}))
	if err != nil {
		log.Printf("audit runs find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch audit runs")
		return
	}
	defer cursor.Close(ctx)

	var runs []models.ScheduledAuditRun
	if err := cursor.All(ctx, &runs); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode audit runs")
		return
	}
	if runs == nil {
		runs = []models.ScheduledAuditRun{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(runs, total, page))
}

// GetAuditRun returns the run with a summary that reflects findings so far.
func GetAuditRun(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	run, err := loadAuditRun(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to fetch audit run")
		return
	}
	if run.Status != models.RunCompleted {
		run.Summary = run.Summarize(nil)
	}
	utils.RespondWithJSON(w, http.StatusOK, run)
}

// RecordFinding stores or replaces the finding for one asset of an open run.
func RecordFinding(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req findingRequest
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

	run, err := loadAuditRun(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to record finding")
		return
	}
	if run.Status == models.RunCompleted {
		respondServiceError(w, invalidState("audit run is already completed"), "")
		return
	}
	if !run.HasAsset(assetID) {
		respondServiceError(w, invalidState("asset is not part of this audit run"), "")
		return
	}

	now := time.Now().UTC()
	finding := models.AuditFinding{
		AssetID:    assetID,
		Found:      *req.Found,
		Condition:  req.Condition,
		Location:   strings.TrimSpace(req.Location),
		Notes:      req.Notes,
		VerifiedBy: info.UserID,
		VerifiedAt: now,
	}
	open := bson.M{"$ne": models.RunCompleted}

	// Replace in place when the asset already has a finding, otherwise append.
	res, err := auditRunCollection.UpdateOne(ctx,
		bson.M{"_id": id, "status": open, "findings.assetId": assetID},
		bson.M{"$set": bson.M{"findings.$": finding, "status": models.RunInProgress}})
	if err == nil && res.MatchedCount == 0 {
		res, err = auditRunCollection.UpdateOne(ctx,
			bson.M{"_id": id, "status": open, "findings.assetId": bson.M{"$ne": assetID}},
			bson.M{"$push": bson.M{"findings": finding}, "$set": bson.M{"status": models.RunInProgress}})
	}
	if err != nil {
		respondServiceError(w, err, "failed to record finding")
		return
	}
	if res.MatchedCount == 0 {
		respondServiceError(w, conflict("audit run changed while recording, retry"), "")
		return
	}

	if _, err := assetCollection.UpdateOne(ctx, bson.M{"_id": assetID},
		bson.M{"$set": bson.M{"lastAuditedAt": now}}); err != nil {
		log.Printf("set lastAuditedAt on %s: %v", assetID.Hex(), err)
	}

	run.UpsertFinding(finding)
	run.Status = models.RunInProgress
	run.Summary = run.Summarize(nil)
	recordAudit(ctx, r, "audit_finding", "asset", assetID, bson.M{"runId": id, "found": finding.Found})
	utils.RespondWithJSON(w, http.StatusOK, run)
}

// CompleteAuditRun closes a run and stores its final summary. With
// markMissingLost the assets reported missing are flagged as lost.
func CompleteAuditRun(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req completeRunRequest
	if r.ContentLength != 0 {
		if err := utils.ParseJSON(r, &req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	run, err := loadAuditRun(ctx, id)
	if err != nil {
		respondServiceError(w, err, "failed to complete audit run")
		return
	}
	if run.Status == models.RunCompleted {
		respondServiceError(w, conflict("audit run is already completed"), "")
		return
	}

	expected := make(map[primitive.ObjectID]models.Asset, len(run.AssetIDs))
	if len(run.AssetIDs) > 0 {
		cursor, err := assetCollection.Find(ctx, bson.M{"_id": bson.M{"$in": run.AssetIDs}},
			options.Find().SetProjection(bson.M{"location": 1, "condition": 1}))
		if err != nil {
			respondServiceError(w, err, "failed to complete audit run")
			return
		}
		var assets []models.Asset
		err = cursor.All(ctx, &assets)
		cursor.Close(ctx)
		if err != nil {
			respondServiceError(w, err, "failed to complete audit run")
			return
		}
		for _, a := range assets {
			expected[a.ID] = a
		}
	}

	now := time.Now().UTC()
	summary := run.Summarize(expected)
	var completed models.ScheduledAuditRun
	err = auditRunCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.RunCompleted}},
		bson.M{"$set": bson.M{"status": models.RunCompleted, "summary": summary, "completedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&completed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = conflict("audit run is already completed")
		}
		respondServiceError(w, err, "failed to complete audit run")
		return
	}

	var lost int64
	if req.MarkMissingLost {
		if missing := completed.MissingAssetIDs(); len(missing) > 0 {
			res, err := assetCollection.UpdateMany(ctx,
				bson.M{"_id": bson.M{"$in": missing}, "status": bson.M{"$ne": models.AssetDisposed}},
				bson.M{"$set": bson.M{"status": models.AssetLost, "updatedAt": now}})
			if err != nil {
				log.Printf("mark missing assets lost for run %s: %v", id.Hex(), err)
			} else {
				lost = res.ModifiedCount
			}
		}
	}

	recordAudit(ctx, r, "audit_run_complete", "audit_run", id,
		bson.M{"verified": summary.Verified, "missing": summary.Missing, "markedLost": lost})
	if summary.Missing > 0 || summary.Discrepancies > 0 {
		notifyRole(ctx, []string{models.RoleAdmin, models.RoleInventoryManager}, "Audit completed with issues",
			fmt.Sprintf("%s: %d missing, %d discrepancies", completed.Name, summary.Missing, summary.Discrepancies),
			"warning", "/audit-runs/"+id.Hex())
	}
	utils.RespondWithJSON(w, http.StatusOK, completed)
}

// claimFilter matches the schedule only while it is still in the state it was
// read in, so two ticks cannot both start a run for the same due time.
func claimFilter(a models.ScheduledAudit) bson.M {
	filter := bson.M{"_id": a.ID, "isActive": true}
	if a.Frequency == models.FrequencyCustom {
		if a.LastRunAt == nil {
			filter["lastRunAt"] = bson.M{"$exists": false}
		} else {
			filter["lastRunAt"] = *a.LastRunAt
		}
		return filter
	}
	filter["nextRunAt"] = *a.NextRunAt
	return filter
}

// nextRunAfterTick is the schedule's next due time once a run has been taken at now.
func nextRunAfterTick(a models.ScheduledAudit, now time.Time) (time.Time, bool) {
	if a.Frequency == models.FrequencyCustom || a.NextRunAt == nil {
		return a.NextRun(now)
	}
	return a.AdvancePast(*a.NextRunAt, now)
}

// RunDueAudits starts a run for every active schedule that is due at now. Each
// schedule gets at most one run per call even when several periods were missed.
func RunDueAudits(ctx context.Context, now time.Time) (int, error) {
	cursor, err := scheduledAuditCollection.Find(ctx, bson.M{
		"isActive": true,
		"$or": bson.A{
			bson.M{"frequency": models.FrequencyCustom},
			bson.M{"nextRunAt": bson.M{"$lte": now}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("find due audits: %w", err)
	}
	var audits []models.ScheduledAudit
	err = cursor.All(ctx, &audits)
	cursor.Close(ctx)
	if err != nil {
		return 0, fmt.Errorf("decode due audits: %w", err)
	}

	started := 0
	for i := range audits {
		audit := audits[i]
		if !audit.IsDue(now) {
			continue
		}
		set := bson.M{"lastRunAt": now, "updatedAt": now}
		if next, ok := nextRunAfterTick(audit, now); ok {
			set["nextRunAt"] = next
		}
		res, err := scheduledAuditCollection.UpdateOne(ctx, claimFilter(audit), bson.M{"$set": set})
		if err != nil {
			log.Printf("claim scheduled audit %s: %v", audit.ID.Hex(), err)
			continue
		}
		if res.MatchedCount == 0 {
			continue
		}
		run, err := startAuditRun(ctx, &audit, schedulerTrigger, now)
		if err != nil {
			log.Printf("start scheduled audit %s: %v", audit.ID.Hex(), err)
			continue
		}
		recordSystemAudit(ctx, "audit_run_start", "scheduled_audit", audit.ID,
			bson.M{"runId": run.ID, "assets": len(run.AssetIDs)})
		started++
	}
	return started, nil
}
