package auth

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/structsense/dashboard/config"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services"
	"github.com/structsense/dashboard/services/audit"
	authsvc "github.com/structsense/dashboard/services/auth"
	"github.com/structsense/dashboard/tokens"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	// LogoutPath is where the session cookie is cleared
	LogoutPath = "/auth/logout"

	// SignupPath serves the self-service registration form
	SignupPath = "/auth/signup"
)

// Authenticator creates dashboard accounts, checks credentials and issues access tokens.
type Authenticator interface {
	Signup(ctx context.Context, in authsvc.SignupInput, req audit.RequestInfo) (*models.User, error)
	Authenticate(ctx context.Context, email, password string, req audit.RequestInfo) (*authsvc.Token, *models.User, error)
}

// TokenValidator verifies access tokens and returns parsed claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*tokens.ParsedClaims, error)
}

// Handler serves the login and signup forms, logout and the dashboard page shell.
// Routing to these pages goes through the session gate first.
type Handler struct {
	cfg       *config.Config
	authn     Authenticator
	validator TokenValidator
	logger    *zap.Logger
}

// NewHandler creates a new page handler
func NewHandler(cfg *config.Config, authn Authenticator, validator TokenValidator, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		authn:     authn,
		validator: validator,
		logger:    logger,
	}
}

type loginView struct {
	Action     string
	SignupPath string
	Email      string
	Error      string
	Notice     string
}

type signupView struct {
	Action    string
	LoginPath string
	Email     string
	FullName  string
	Error     string
}

type dashboardView struct {
	Email      string
	Role       string
	ExpiresAt  string
	Path       string
	APIBase    string
	LogoutPath string
}

// HandleLoginPage renders the login form
func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	view := loginView{}
	if r.URL.Query().Get("registered") != "" {
		view.Notice = "Account created. Sign in to continue."
	}
	h.renderLogin(w, http.StatusOK, view)
}

// HandleSignupPage renders the registration form
func (h *Handler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	h.renderSignup(w, http.StatusOK, signupView{})
}

// HandleSignup creates a viewer account from the submitted form and sends
// the browser to the login page.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderSignup(w, http.StatusBadRequest, signupView{Error: "Invalid form submission"})
		return
	}

	view := signupView{
		Email:    r.PostForm.Get("email"),
		FullName: r.PostForm.Get("full_name"),
	}
	password := r.PostForm.Get("password")
	if view.Email == "" || password == "" {
		view.Error = "Email and password are required"
		h.renderSignup(w, http.StatusBadRequest, view)
		return
	}
	if password != r.PostForm.Get("confirm_password") {
		view.Error = "Passwords do not match"
		h.renderSignup(w, http.StatusBadRequest, view)
		return
	}

	user, err := h.authn.Signup(r.Context(), authsvc.SignupInput{
		Email:    view.Email,
		Password: password,
		FullName: view.FullName,
	}, requestInfo(r))
	if err != nil {
		status, message := signupFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("signup failed",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.Error(err))
		}
		view.Error = message
		h.renderSignup(w, status, view)
		return
	}

	h.logger.Info("dashboard signup",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("user_id", user.ID.String()))

	http.Redirect(w, r, h.cfg.Auth.LoginPath+"?registered=1", http.StatusSeeOther)
}

// HandleLogin authenticates the submitted form, stores the access token in
// the session cookie and sends the browser to the dashboard.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, http.StatusBadRequest, loginView{Error: "Invalid form submission"})
		return
	}

	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		h.renderLogin(w, http.StatusBadRequest, loginView{Email: email, Error: "Email and password are required"})
		return
	}

	token, user, err := h.authn.Authenticate(r.Context(), email, password, requestInfo(r))
	if err != nil {
		status, message := loginFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("login failed",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.Error(err))
		}
		h.renderLogin(w, status, loginView{Email: email, Error: message})
		return
	}

	http.SetCookie(w, h.sessionCookie(token.AccessToken, int(time.Until(token.ExpiresAt).Seconds())))

	h.logger.Info("dashboard login",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("user_id", user.ID.String()))

	http.Redirect(w, r, h.cfg.Auth.DashboardPath, http.StatusSeeOther)
}

// HandleLogout clears the session cookie and redirects to the login page
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	http.Redirect(w, r, h.cfg.Auth.LoginPath, http.StatusSeeOther)
}

// HandleDashboard renders the dashboard shell. The gate has already rejected
// missing and expired cookies; the signature is verified here.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cfg.Auth.CookieName)
	if err != nil {
		http.Redirect(w, r, h.cfg.Auth.LoginPath, http.StatusTemporaryRedirect)
		return
	}

	claims, err := h.validator.ValidateToken(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Warn("dashboard cookie rejected",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		http.SetCookie(w, h.sessionCookie("", -1))
		http.Redirect(w, r, h.cfg.Auth.LoginPath, http.StatusTemporaryRedirect)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	view := dashboardView{
		Email:      claims.Email,
		Role:       claims.Role,
		ExpiresAt:  claims.ExpiresAt.UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
		APIBase:    "/api/v1",
		LogoutPath: LogoutPath,
	}
	if err := pages.ExecuteTemplate(w, "dashboard.html", view); err != nil {
		h.logger.Error("failed to render dashboard", zap.Error(err))
	}
}

func (h *Handler) renderLogin(w http.ResponseWriter, status int, view loginView) {
	view.Action = h.cfg.Auth.LoginPath
	view.SignupPath = SignupPath
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, "login.html", view); err != nil {
		h.logger.Error("failed to render login page", zap.Error(err))
	}
}

func (h *Handler) renderSignup(w http.ResponseWriter, status int, view signupView) {
	view.Action = SignupPath
	view.LoginPath = h.cfg.Auth.LoginPath
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, "signup.html", view); err != nil {
		h.logger.Error("failed to render signup page", zap.Error(err))
	}
}

func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func loginFailure(err error) (int, string) {
	switch {
	case services.IsRateLimitError(err):
		return http.StatusTooManyRequests, "Too many failed attempts. Try again later."
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized, "Incorrect email or password"
	case services.IsUnavailableError(err):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Something went wrong. Try again."
	}
}

func signupFailure(err error) (int, string) {
	switch {
	case services.IsConflictError(err):
		return http.StatusConflict, "An account with this email already exists"
	case services.IsValidationError(err):
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			if minLen, ok := domainErr.Details["min_length"]; ok {
				return http.StatusBadRequest, fmt.Sprintf("Password must be at least %v characters", minLen)
			}
			if domainErr.Message != "" {
				return http.StatusBadRequest, strings.ToUpper(domainErr.Message[:1]) + domainErr.Message[1:]
			}
		}
		return http.StatusBadRequest, "Invalid email or password"
	case services.IsUnavailableError(err):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Something went wrong. Try again."
	}
}

func requestInfo(r *http.Request) audit.RequestInfo {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return audit.RequestInfo{
		RequestID: chimw.GetReqID(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
