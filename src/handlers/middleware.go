package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
	"github.com/username/limoney/backend/src/utils"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const actorContextKey contextKey = "actor"

// AuthMiddleware validates the bearer token, checks the session and stores
// the caller's ActorContext on the request context.
func (h *UserHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
			utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		userIDStr, role, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		userIDInt, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			logger.L.Error("AuthMiddleware: Invalid user ID format in token", "userIDStr", userIDStr, "error", err)
			utils.SendJSONError(w, "Invalid user ID in token", http.StatusInternalServerError)
			return
		}

		if _, err := models.GetSessionByToken(database.DB, tokenString); err != nil {
			// Google sign-ins don't create a local session; only local
			// accounts require one.
			user, userErr := models.GetUserByID(database.DB, userIDInt)
			if userErr != nil {
				logger.L.Warn("AuthMiddleware: User not found for token after session check failed", "userID", userIDInt, "error", userErr)
				utils.SendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
				return
			}
			if user.AuthProvider == "local" {
				logger.L.Warn("AuthMiddleware: Session validation failed for local user's access token", "path", r.URL.Path, "error", err)
				utils.SendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}
		}

		actor := security.ActorContext{UserID: userIDInt, Role: role}
		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin callers. Must be stacked inside
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActorFromContext(r.Context())
		if !ok {
			utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !actor.IsAdmin() {
			logger.L.Warn("Admin route denied", "path", r.URL.Path, "userID", actor.UserID)
			utils.SendJSONError(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetActorFromContext retrieves the authenticated actor from the context.
func GetActorFromContext(ctx context.Context) (security.ActorContext, bool) {
	actor, ok := ctx.Value(actorContextKey).(security.ActorContext)
	return actor, ok
}
