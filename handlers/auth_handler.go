package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/audit"
	"github.com/structsense/dashboard/services/auth"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// SignupRequest represents a request to create an account
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"max=255"`
}

// AuthService defines the account operations used by the handler
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput, req audit.RequestInfo) (*models.User, error)
	Authenticate(ctx context.Context, email, password string, req audit.RequestInfo) (*auth.Token, *models.User, error)
	CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthHandler serves the token, signup and profile endpoints
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		logger: logger,
	}
}

// HandleToken handles POST /api/v1/auth/token. It accepts the OAuth2
// password form (username, password) and returns the token as bare JSON.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if err := r.ParseForm(); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid form body", nil)
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		_ = utils.WriteBadRequest(w, "username and password are required", nil)
		return
	}

	token, user, err := h.auth.Authenticate(ctx, username, password, requestInfo(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("token issued",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()))

	w.Header().Set("Cache-Control", "no-store")
	_ = utils.WriteJSON(w, http.StatusOK, token)
}

// HandleSignup handles POST /api/v1/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.auth.Signup(ctx, auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	}, requestInfo(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, user)
}

// HandleMe handles GET /api/v1/users/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), *userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}
