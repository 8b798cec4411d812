package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/structsense/dashboard/app"
	"github.com/structsense/dashboard/auth"
	"github.com/structsense/dashboard/handlers"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.APIKeyHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleLiveness)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Dashboard pages. The gate sits on the mounted subrouters so every
	// method and sub-path under a gated prefix is evaluated, including
	// requests that end in a 404 or 405.
	r.Route(cfg.Auth.DashboardPath, func(r chi.Router) {
		r.Use(deps.SessionGate.Handler)
		r.Get("/", deps.Pages.HandleDashboard)
		r.Get("/*", deps.Pages.HandleDashboard)
	})
	r.Route(cfg.Auth.LoginPath, func(r chi.Router) {
		r.Use(deps.SessionGate.Handler)
		r.Get("/", deps.Pages.HandleLoginPage)
		// Ungated by the session gate; see app.initHTTP.
		r.Post("/", deps.Pages.HandleLogin)
	})
	r.Get(auth.SignupPath, deps.Pages.HandleSignupPage)
	r.Post(auth.SignupPath, deps.Pages.HandleSignup)
	r.Get(auth.LogoutPath, deps.Pages.HandleLogout)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cfg.Auth.DashboardPath, http.StatusFound)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", deps.HealthHandler.HandleHealth)
		r.Post("/auth/token", deps.AuthHandler.HandleToken)
		r.Post("/auth/signup", deps.AuthHandler.HandleSignup)

		// Devices authenticate with their API key
		r.Post("/sensor/ingest", deps.SensorHandler.HandleIngest)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Get("/users/me", deps.AuthHandler.HandleMe)

			// Device management
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deps.DeviceHandler.HandleList)
				r.Post("/register", deps.DeviceHandler.HandleRegister)
				r.Get("/{id}", deps.DeviceHandler.HandleGet)
				r.Patch("/{id}", deps.DeviceHandler.HandleUpdate)

				r.Group(func(r chi.Router) {
					r.Use(deps.AuthMiddleware.RequireRole(string(models.RoleAdmin)))
					r.Delete("/{id}", deps.DeviceHandler.HandleDelete)
					r.Post("/{id}/reset", deps.DeviceHandler.HandleReset)
				})
			})

			// Readings
			r.Route("/sensor/devices/{id}", func(r chi.Router) {
				r.Get("/processed", deps.SensorHandler.HandleProcessed)
				r.Get("/export", deps.SensorHandler.HandleExport)
			})

			// Audit logs (require admin role)
			r.Route("/audit", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(string(models.RoleAdmin)))
				r.Get("/logs", deps.AuditHandler.HandleListLogs)
				r.Get("/devices/{id}/logs", deps.AuditHandler.HandleDeviceLogs)
				r.Get("/stats", deps.AuditHandler.HandleStats)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
