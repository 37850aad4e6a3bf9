package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/username/limoney/backend/src/config"
	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
	"github.com/username/limoney/backend/src/utils"
)

type UserHandler struct {
	authService *security.AuthService
}

func NewUserHandler(authService *security.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = strings.TrimSpace(credentials.Username)
	credentials.Email = strings.TrimSpace(strings.ToLower(credentials.Email))
	if credentials.Username == "" || credentials.Email == "" {
		utils.SendJSONError(w, "Username and email are required", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		utils.SendJSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username: credentials.Username,
		Email:    credentials.Email,
		Name:     credentials.Name,
		Password: hashedPassword,
	}

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			utils.SendJSONError(w, "Username already exists", http.StatusConflict)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			utils.SendJSONError(w, "Email already registered", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID, "username", user.Username)
	utils.SendJSON(w, map[string]string{
		"message": "User registered successfully",
	}, http.StatusCreated)
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := models.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		logger.L.Warn("Login: user lookup failed", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Login: password check failed", "username", credentials.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	accessToken, refreshToken, err := h.issueSession(r, user)
	if err != nil {
		logger.L.Error("Login: failed to issue session", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user": map[string]interface{}{
			"id":        user.ID,
			"username":  user.Username,
			"email":     user.Email,
			"name":      user.Name,
			"user_type": user.UserType,
		},
	}, http.StatusOK)
}

// issueSession generates an access/refresh token pair and persists the
// session row.
func (h *UserHandler) issueSession(r *http.Request, user *models.User) (string, string, error) {
	userIDStr := fmt.Sprintf("%d", user.ID)
	role := "standard"
	if user.IsAdmin() {
		role = "admin"
	}

	accessToken, err := h.authService.GenerateToken(userIDStr, role)
	if err != nil {
		return "", "", fmt.Errorf("generating access token: %w", err)
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}

	session := &models.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := models.CreateSession(database.DB, session); err != nil {
		return "", "", fmt.Errorf("creating session: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.RefreshToken == "" {
		utils.SendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	session, err := models.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token validation failed", "error", err)
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	user, err := models.GetUserByID(database.DB, session.UserID)
	if err != nil {
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	// Rotate: drop the old session before issuing the new pair.
	if err := models.DeleteSessionByToken(database.DB, session.Token); err != nil {
		logger.L.Warn("Failed to delete rotated session", "sessionID", session.ID, "error", err)
	}

	accessToken, refreshToken, err := h.issueSession(r, user)
	if err != nil {
		logger.L.Error("Refresh: failed to issue session", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}, http.StatusOK)
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
		return
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
		return
	}

	if err := models.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Logout: failed to delete session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetCurrentUser returns the authenticated user's profile.
func (h *UserHandler) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	user, err := models.GetUserByID(database.DB, actor.UserID)
	if err != nil {
		utils.SendJSONError(w, "user not found", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, user, http.StatusOK)
}

// parsePathID extracts a numeric {id} path value.
func parsePathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
