package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/pffise-create/PinhighAI-sub003/internal/api/middleware"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler    http.HandlerFunc
	CreateJobHandler http.HandlerFunc
	PollJobHandler   http.HandlerFunc
	JobRecordHandler http.HandlerFunc
	ProgressHandler  http.HandlerFunc
	TriggerHandler   http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Telemetry(deps.Metrics))

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.With(deps.Auth.RequireScope(models.ScopeIntake)).Group(func(r chi.Router) {
			r.Post("/api/v1/analyses", orNotImplemented(deps.CreateJobHandler))
			r.Post("/api/v1/analyses/{jobID}/progress", orNotImplemented(deps.ProgressHandler))
		})

		r.With(deps.Auth.RequireScope(models.ScopeRead)).Group(func(r chi.Router) {
			r.Get("/api/v1/analyses/{jobID}", orNotImplemented(deps.PollJobHandler))
			r.Get("/api/v1/analyses/{jobID}/record", orNotImplemented(deps.JobRecordHandler))
		})

		r.With(deps.Auth.RequireScope(models.ScopeTrigger)).
			Post("/api/v1/triggers", orNotImplemented(deps.TriggerHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
