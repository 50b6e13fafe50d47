package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/issueflow/internal/api/handlers"
	"github.com/hugh/issueflow/internal/api/middleware"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/cache"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/integrations"
	"github.com/hugh/issueflow/internal/metrics"
	"github.com/hugh/issueflow/internal/projects"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Counters     cache.CounterStore
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	JWTService   *auth.JWTService
	AuthService  *auth.Service
	Tenants      *tenant.Service
	Quota        *tenant.QuotaEnforcer
	Projects     *projects.Service
	Integrations *integrations.Service

	// Development exposes panic details in 500 responses
	Development    bool
	AllowedOrigins []string // CORS allowed origins

	APIRateLimit   int
	APIRateWindow  time.Duration
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Development))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.OrgHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Post-response hooks let the limiters refund after the final status is known
	r.Use(middleware.ResponseHooks)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, apperr.NotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusMethodNotAllowed, response.Failure{
			Error:   "Method Not Allowed",
			Message: "Method not allowed",
		})
	})

	// Limiters
	apiLimiter := middleware.NewRateLimiter(cfg.Counters,
		middleware.APIRateLimit(cfg.APIRateLimit, cfg.APIRateWindow), cfg.Logger, cfg.Metrics)
	userLimiter := middleware.NewRateLimiter(cfg.Counters,
		middleware.UserRateLimit(cfg.APIRateLimit, cfg.APIRateWindow), cfg.Logger, cfg.Metrics)
	orgLimiter := middleware.NewRateLimiter(cfg.Counters,
		middleware.OrganizationRateLimit(cfg.APIRateLimit, cfg.APIRateWindow), cfg.Logger, cfg.Metrics)
	authLimiter := middleware.NewRateLimiter(cfg.Counters,
		middleware.AuthRateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow), cfg.Logger, cfg.Metrics)

	// Pipeline stages
	requireAuth := middleware.RequireAuth(cfg.JWTService, cfg.AuthService)
	requireTenant := middleware.RequireTenant(cfg.Tenants)
	requireAdmin := middleware.RequireOrgRole(models.RoleAdmin)
	quota := func(action tenant.Action) func(http.Handler) http.Handler {
		return middleware.EnforceQuota(cfg.Quota, action, cfg.Metrics)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	orgHandler := handlers.NewOrganizationHandler(cfg.Tenants, cfg.Quota)
	projectHandler := handlers.NewProjectHandler(cfg.Projects)
	integrationHandler := handlers.NewIntegrationHandler(cfg.Integrations)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public credential endpoints
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Handler)
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh-token", authHandler.RefreshToken)
				r.Post("/request-password-reset", authHandler.RequestPasswordReset)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			// Session endpoints
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(userLimiter.Handler)
				r.Post("/logout", authHandler.Logout)
				r.Get("/profile", authHandler.Profile)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Use(apiLimiter.Handler)
			r.Use(requireAuth)

			r.Post("/", orgHandler.Create)
			r.Get("/", orgHandler.List)

			// Tenant taken from the X-Organization header or ?org=
			r.With(requireTenant).Get("/current", orgHandler.Get)

			r.Route("/{orgSlug}", func(r chi.Router) {
				r.Use(requireTenant)
				r.Use(orgLimiter.Handler)

				r.Get("/", orgHandler.Get)
				r.With(requireAdmin).Put("/", orgHandler.Update)
				r.With(requireAdmin).Delete("/", orgHandler.Delete)

				r.Route("/members", func(r chi.Router) {
					r.Get("/", orgHandler.ListMembers)
					r.With(requireAdmin, quota(tenant.ActionAddMember)).Post("/", orgHandler.AddMember)
					r.With(requireAdmin).Put("/{userId}", orgHandler.UpdateMember)
					r.With(requireAdmin).Delete("/{userId}", orgHandler.RemoveMember)
				})

				r.Route("/projects", func(r chi.Router) {
					r.Get("/", projectHandler.List)
					r.With(quota(tenant.ActionCreateProject)).Post("/", projectHandler.Create)
					r.Get("/{id}", projectHandler.Get)
					r.With(requireAdmin).Post("/{id}/rotate-key", projectHandler.RotateKey)
					r.With(requireAdmin).Delete("/{id}", projectHandler.Delete)
				})

				r.Route("/integrations", func(r chi.Router) {
					r.Get("/", integrationHandler.List)
					r.With(requireAdmin, quota(tenant.ActionCreateIntegration)).Post("/", integrationHandler.Create)
					r.With(requireAdmin).Put("/{id}", integrationHandler.Update)
					r.With(requireAdmin).Post("/{id}/test", integrationHandler.Test)
					r.With(requireAdmin).Delete("/{id}", integrationHandler.Delete)
				})
			})
		})
	})

	return &Router{r}
}
