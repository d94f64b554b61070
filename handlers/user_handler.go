// handlers/user_handler.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/config"
	"deadstock/models"
	"deadstock/utils"
)

type createUserRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"omitempty,min=8,max=72"`
	Role       string `json:"role" validate:"required,oneof=admin inventory_manager auditor employee"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

type updateUserRequest struct {
	FirstName  *string `json:"firstName" validate:"omitempty,max=100"`
	LastName   *string `json:"lastName" validate:"omitempty,max=100"`
	Role       *string `json:"role" validate:"omitempty,oneof=admin inventory_manager auditor employee"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
	IsActive   *bool   `json:"isActive"`
}

func ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.GetPaginationParams(q)

	filter := bson.M{}
	if role := q.Get("role"); role != "" && role != "all" {
		filter["role"] = role
	}
	if dept := q.Get("department"); dept != "" {
		filter["department"] = dept
	}
	if active := q.Get("active"); active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter["isActive"] = b
	}
	if s := q.Get("search"); strings.TrimSpace(s) != "" {
		re := containsRegex(s)
		filter["$or"] = bson.A{
			bson.M{"firstName": re},
			bson.M{"lastName": re},
			bson.M{"email": re},
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	total, err := userCollection.CountDocuments(ctx, filter)
	if err != nil {
		log.Printf("users count error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	cursor, err := userCollection.Find(ctx, filter,
		pagedFind(page.Skip(), page.Limit, bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}}))
	if err != nil {
		log.Printf("users find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode users")
		return
	}
	if users == nil {
		users = []models.User{}
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.NewPaginated(users, total, page))
}

func CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	count, err := userCollection.CountDocuments(ctx, bson.M{"email": req.Email})
	if err != nil {
		respondServiceError(w, err, "failed to create user")
		return
	}
	if count > 0 {
		respondServiceError(w, conflict("email %s is already registered", req.Email), "")
		return
	}

	password := req.Password
	generated := password == ""
	if generated {
		password = utils.GenerateRandomPassword(12)
	}
	hash, err := utils.HashPassword(password, config.BcryptCost)
	if err != nil {
		log.Printf("hash password error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Department:   req.Department,
		Phone:        req.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := userCollection.InsertOne(ctx, user); err != nil {
		respondServiceError(w, err, "failed to create user")
		return
	}

	recordAudit(ctx, r, "user_create", "user", user.ID, bson.M{"email": user.Email, "role": user.Role})

	resp := map[string]interface{}{"user": user}
	if generated {
		resp["temporaryPassword"] = password
	}
	utils.RespondWithJSON(w, http.StatusCreated, resp)
}

func GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var user models.User
	if err := userCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = notFound("user")
		}
		respondServiceError(w, err, "failed to fetch user")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, user)
}

func UpdateUser(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id == info.UserID {
		if req.IsActive != nil && !*req.IsActive {
			utils.RespondWithError(w, http.StatusBadRequest, "you cannot deactivate your own account")
			return
		}
		if req.Role != nil && *req.Role != models.RoleAdmin {
			utils.RespondWithError(w, http.StatusBadRequest, "you cannot change your own role")
			return
		}
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if req.FirstName != nil {
		set["firstName"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		set["lastName"] = strings.TrimSpace(*req.LastName)
	}
	if req.Role != nil {
		set["role"] = *req.Role
	}
	if req.Department != nil {
		set["department"] = *req.Department
	}
	if req.Phone != nil {
		set["phone"] = *req.Phone
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var updated models.User
	err := userCollection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = notFound("user")
		}
		respondServiceError(w, err, "failed to update user")
		return
	}

	delete(set, "updatedAt")
	recordAudit(ctx, r, "user_update", "user", id, set)
	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func DeleteUser(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	if id == info.UserID {
		utils.RespondWithError(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	assigned, err := assetCollection.CountDocuments(ctx, bson.M{"assignedTo": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete user")
		return
	}
	if assigned > 0 {
		respondServiceError(w, conflict("user still has %d assigned assets", assigned), "")
		return
	}

	res, err := userCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		respondServiceError(w, err, "failed to delete user")
		return
	}
	if res.DeletedCount == 0 {
		respondServiceError(w, notFound("user"), "")
		return
	}

	recordAudit(ctx, r, "user_delete", "user", id, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// GetUserAssets lists the assets currently assigned to a user.
func GetUserAssets(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathObjectID(w, r, "id")
	if !ok {
		return
	}
	listAssignedAssets(w, r, id)
}

func listAssignedAssets(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cursor, err := assetCollection.Find(ctx, bson.M{"assignedTo": userID},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Printf("assigned assets find error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "database query failed")
		return
	}
	defer cursor.Close(ctx)

	var assets []models.Asset
	if err := cursor.All(ctx, &assets); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to decode assets")
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	utils.RespondWithJSON(w, http.StatusOK, assets)
}
