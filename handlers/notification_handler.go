package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/cache"
	"deadstock/models"
	"deadstock/utils"
	"deadstock/websocket"
)

const maxNotifications = 100

// dropDashboards forgets the cached employee dashboards of users whose unread
// count just changed.
var dropDashboards = func(ctx context.Context, userIDs ...primitive.ObjectID) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cache.DashboardKey(employeeDashboard, id.Hex())
	}
	cache.Default.Delete(ctx, keys...)
}

// notifyUsers stores one notification per recipient and pushes each over the
// websocket, unless in-app notifications are switched off in settings. Role
// is recorded when the notification was addressed to a role.
func notifyUsers(ctx context.Context, userIDs []primitive.ObjectID, role, title, message, kind, link string) {
	if len(userIDs) == 0 {
		return
	}
	if settings, err := loadSettings(ctx); err != nil {
		log.Printf("notify (%s): settings unavailable, sending anyway: %v", title, err)
	} else if !settings.Notifications.InApp {
		return
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(userIDs))
	notes := make([]*models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		n := &models.Notification{
			ID:        primitive.NewObjectID(),
			UserID:    id,
			Role:      role,
			Title:     title,
			Message:   message,
			Type:      kind,
			Link:      link,
			CreatedAt: now,
		}
		docs = append(docs, n)
		notes = append(notes, n)
	}
	if _, err := notificationCollection.InsertMany(ctx, docs); err != nil {
		log.Printf("notification insert failed (%s): %v", title, err)
		return
	}
	dropDashboards(ctx, userIDs...)
	for _, n := range notes {
		websocket.SendNotification(n)
	}
}

func notifyUser(ctx context.Context, userID primitive.ObjectID, title, message, kind, link string) {
	notifyUsers(ctx, []primitive.ObjectID{userID}, "", title, message, kind, link)
}

// notifyRole fans a notification out to every active user holding one of roles.
func notifyRole(ctx context.Context, roles []string, title, message, kind, link string) {
	cursor, err := userCollection.Find(ctx,
		bson.M{"role": bson.M{"$in": roles}, "isActive": true},
		options.Find().SetProjection(bson.M{"_id": 1, "role": 1}))
	if err != nil {
		log.Printf("notifyRole: user lookup failed: %v", err)
		return
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		log.Printf("notifyRole: decode failed: %v", err)
		return
	}

	byRole := map[string][]primitive.ObjectID{}
	for _, u := range users {
		byRole[u.Role] = append(byRole[u.Role], u.ID)
	}
	for role, ids := range byRole {
		notifyUsers(ctx, ids, role, title, message, kind, link)
	}
}

// ListNotifications returns the caller's most recent notifications.
func ListNotifications(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	filter := bson.M{"userId": info.UserID}
	if r.URL.Query().Get("unread") == "true" {
		filter["read"] = false
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cursor, err := notificationCollection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(maxNotifications))
	if err != nil {
		log.Printf("notifications find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	defer cursor.Close(ctx)

	var notes []models.Notification
	if err := cursor.All(ctx, &notes); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode notifications")
		return
	}
	if notes == nil {
		notes = []models.Notification{}
	}

	unread, err := notificationCollection.CountDocuments(ctx, bson.M{"userId": info.UserID, "read": false})
	if err != nil {
		log.Printf("notifications count error: %v", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":  notes,
		"unread": unread,
	})
}

func MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
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

	res, err := notificationCollection.UpdateOne(ctx,
		bson.M{"_id": id, "userId": info.UserID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		respondServiceError(w, err, "failed to update notification")
		return
	}
	if res.MatchedCount == 0 {
		respondServiceError(w, notFound("notification"), "")
		return
	}
	if res.ModifiedCount > 0 {
		dropDashboards(ctx, info.UserID)
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "notification marked as read"})
}

func MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := notificationCollection.UpdateMany(ctx,
		bson.M{"userId": info.UserID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		respondServiceError(w, err, "failed to update notifications")
		return
	}
	if res.ModifiedCount > 0 {
		dropDashboards(ctx, info.UserID)
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%d notifications marked as read", res.ModifiedCount),
		"updated": res.ModifiedCount,
	})
}
