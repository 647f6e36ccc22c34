package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sheetwise/modelmux/app"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Chat endpoint, called service-to-service with an API key
	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.APIKeyMiddleware.Require)
		r.Post("/chat", deps.ChatHandler.HandleChatCompletion)
	})

	// Admin API, JWT authenticated and tenant scoped
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.ExtractTenant)

		// Model catalog
		r.Route("/model-configs", func(r chi.Router) {
			r.Get("/", deps.ModelConfigHandler.HandleListModelConfigs)
			r.Post("/", deps.ModelConfigHandler.HandleCreateModelConfig)
			r.Get("/{id}", deps.ModelConfigHandler.HandleGetModelConfig)
			r.Patch("/{id}", deps.ModelConfigHandler.HandleUpdateModelConfig)
			r.Delete("/{id}", deps.ModelConfigHandler.HandleDeleteModelConfig)
			r.Post("/{id}/default", deps.ModelConfigHandler.HandleSetDefault)
			r.Post("/{id}/activate", deps.ModelConfigHandler.HandleActivate)
			r.Post("/{id}/deactivate", deps.ModelConfigHandler.HandleDeactivate)
			r.Post("/{id}/health", deps.DiagnosticsHandler.HandleModelHealth)
		})

		// Routing policies
		r.Route("/routing-policies", func(r chi.Router) {
			r.Get("/", deps.PolicyHandler.HandleListPolicies)
			r.Post("/", deps.PolicyHandler.HandleCreatePolicy)
			r.Get("/active", deps.PolicyHandler.HandleGetActivePolicy)
			r.Get("/{id}", deps.PolicyHandler.HandleGetPolicy)
			r.Post("/{id}/activate", deps.PolicyHandler.HandleActivatePolicy)
		})

		// Usage logs and metrics
		r.Route("/usage", func(r chi.Router) {
			r.Get("/", deps.UsageHandler.HandleListUsage)
			r.Get("/metrics", deps.UsageHandler.HandleUsageMetrics)
		})

		// Routing diagnostics
		r.Post("/diagnostics/routing-plan", deps.DiagnosticsHandler.HandleRoutingPlan)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
