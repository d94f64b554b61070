// handlers/auth_handler.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/config"
	"deadstock/models"
	"deadstock/utils"
)

const tokenCookie = "token"

// dummyHash keeps the unknown-email path as slow as a wrong password.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3OD5uJ4/1j3C7lG5pPp5b2e"

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token       string          `json:"token"`
	User        models.User     `json:"user"`
	Permissions map[string]bool `json:"permissions"`
	Dashboard   string          `json:"dashboard"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// Login handles user authentication
func Login(w http.ResponseWriter, r *http.Request) {
	var creds loginRequest
	if err := utils.ParseJSON(r, &creds); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))
	if err := utils.ValidateStruct(creds); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var user models.User
	err := userCollection.FindOne(ctx, bson.M{"email": creds.Email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			_ = utils.CheckPasswordHash(creds.Password, dummyHash)
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("Database error during login: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Authentication service unavailable")
		return
	}

	if !utils.CheckPasswordHash(creds.Password, user.PasswordHash) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !user.IsActive {
		utils.RespondWithError(w, http.StatusForbidden, "Account is deactivated")
		return
	}

	token, err := utils.GenerateJWT(user.ID.Hex(), user.FullName(), user.Email, user.Role)
	if err != nil {
		log.Printf("JWT generation error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate authentication token")
		return
	}

	now := time.Now().UTC()
	if _, err := userCollection.UpdateOne(ctx, bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"lastLogin": now}}); err != nil {
		log.Printf("lastLogin update failed for %s: %v", user.Email, err)
	}
	user.LastLogin = &now

	expires := now.Add(config.JWTExpiration)
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	r = r.WithContext(utils.WithAuth(r.Context(), utils.AuthInfo{
		UserID: user.ID, Name: user.FullName(), Email: user.Email, Role: user.Role,
	}))
	recordAudit(ctx, r, "user_login", "user", user.ID, nil)

	utils.RespondWithJSON(w, http.StatusOK, LoginResponse{
		Token:       token,
		User:        user,
		Permissions: utils.PermissionsForRole(user.Role),
		Dashboard:   utils.DashboardPath(user.Role),
		ExpiresAt:   expires,
	})
}

// Logout is stateless: tokens expire on their own. It only clears the cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me returns the caller's profile and permission map.
func Me(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var user models.User
	if err := userCollection.FindOne(ctx, bson.M{"_id": info.UserID}).Decode(&user); err != nil {
		respondServiceError(w, err, "failed to load profile")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"permissions": utils.PermissionsForRole(user.Role),
		"dashboard":   utils.DashboardPath(user.Role),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

func ChangePassword(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := utils.ParseJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CurrentPassword == req.NewPassword {
		utils.RespondWithError(w, http.StatusBadRequest, "new password must differ from the current one")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var user models.User
	if err := userCollection.FindOne(ctx, bson.M{"_id": info.UserID}).Decode(&user); err != nil {
		respondServiceError(w, err, "failed to load user")
		return
	}
	if !utils.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		utils.RespondWithError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword, config.BcryptCost)
	if err != nil {
		log.Printf("hash password error: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	if _, err := userCollection.UpdateOne(ctx, bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"passwordHash": hash, "updatedAt": time.Now().UTC()}}); err != nil {
		respondServiceError(w, err, "failed to update password")
		return
	}

	recordAudit(ctx, r, "user_change_password", "user", user.ID, nil)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// EnsureAdminUser creates the first administrator from ADMIN_EMAIL and
// ADMIN_PASSWORD when the users collection is empty.
func EnsureAdminUser(ctx context.Context) error {
	if config.AdminEmail == "" || config.AdminPassword == "" {
		return nil
	}
	count, err := userCollection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword(config.AdminPassword, config.BcryptCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := models.User{
		ID:           primitive.NewObjectID(),
		FirstName:    "System",
		LastName:     "Administrator",
		Email:        strings.ToLower(config.AdminEmail),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := userCollection.InsertOne(ctx, admin); err != nil {
		return err
	}
	log.Printf("Created initial admin account %s", admin.Email)
	return nil
}
