package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"deadstock/database"
	"deadstock/models"
	"deadstock/utils"
)

// findUser loads the account behind a token. Tests replace it.
var findUser = func(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := database.DB().Collection(database.Users).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			log.Printf("AuthMiddleware: JWT validation failed: %v", err)
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		user, err := findUser(r.Context(), userID)
		if err != nil {
			log.Printf("AuthMiddleware: user %s not found: %v", userID.Hex(), err)
			utils.RespondWithError(w, http.StatusUnauthorized, "User not found")
			return
		}
		if !user.IsActive {
			utils.RespondWithError(w, http.StatusForbidden, "Account is deactivated")
			return
		}

		// The stored role wins over the token so demotions apply immediately.
		ctx := utils.WithAuth(r.Context(), utils.AuthInfo{
			UserID: user.ID,
			Name:   user.FullName(),
			Email:  user.Email,
			Role:   user.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := utils.AuthFromContext(r.Context())
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !utils.HasRole(info.Role, roles...) {
				utils.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
