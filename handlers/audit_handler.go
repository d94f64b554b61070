package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"deadstock/cache"
	"deadstock/models"
	"deadstock/utils"
	"deadstock/websocket"
)

// recordAudit stores an audit log for the authenticated caller, streams it to
// connected admins and auditors and drops cached dashboards. Failures are
// logged, never returned: the mutation has already happened.
func recordAudit(ctx context.Context, r *http.Request, action, entityType string, entityID primitive.ObjectID, details bson.M) {
	info, _ := utils.AuthFromContext(r.Context())
	writeAudit(ctx, &models.AuditLog{
		UserID:     info.UserID,
		UserEmail:  info.Email,
		UserRole:   info.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  utils.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

// recordSystemAudit is recordAudit for background jobs.
func recordSystemAudit(ctx context.Context, action, entityType string, entityID primitive.ObjectID, details bson.M) {
	writeAudit(ctx, &models.AuditLog{
		UserEmail:  "system",
		UserRole:   "system",
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	})
}

func writeAudit(ctx context.Context, entry *models.AuditLog) {
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now().UTC()
	if _, err := auditLogCollection.InsertOne(ctx, entry); err != nil {
		log.Printf("audit log insert failed (%s %s): %v", entry.Action, entry.EntityID.Hex(), err)
		return
	}
	websocket.BroadcastAuditLog(entry)
	cache.Default.InvalidatePrefix(ctx, cache.DashboardPrefix)
}

// ListAuditLogs returns a page of audit logs, newest first.
func ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if entityType := q.Get("entityType"); entityType != "" && entityType != "all" {
		filter["entityType"] = entityType
	}
	if action := q.Get("action"); action != "" && action != "all" {
		filter["action"] = containsRegex(action)
	}
	if userID := q.Get("userId"); userID != "" && userID != "all" {
		id, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid userId")
			return
		}
		filter["userId"] = id
	}
	if entityID := q.Get("entityId"); entityID != "" {
		id, err := primitive.ObjectIDFromHex(entityID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid entityId")
			return
		}
		filter["entityId"] = id
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

	total, err := auditLogCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("audit count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch audit logs")
		return
	}

	cursor, err := auditLogCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("audit find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch audit logs")
		return
	}
	defer cursor.Close(ctx)

	var logs []models.AuditLog
	if err = cursor.All(ctx, &logs); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode audit logs")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(logs, total, page))
}
