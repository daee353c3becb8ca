package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agromart/agromart/internal/admin"
	audithttp "github.com/agromart/agromart/internal/audit/http"
	"github.com/agromart/agromart/internal/auth"
	"github.com/agromart/agromart/internal/observability"
	"github.com/agromart/agromart/internal/platform/httpx"
	"github.com/agromart/agromart/internal/rbac"
	"github.com/agromart/agromart/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Auth          *auth.Middleware
	AdminHandler  *admin.Handler
	AuditHandler  *audithttp.Handler
	PolicyHandler *rbac.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
	// RequestLog enables chi's request logger.
	RequestLog bool
}

// NewRouter constructs the chi.Router with Agromart defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		if params.Auth != nil {
			r.Use(params.Auth.LoadActor)
		}
		if params.AdminHandler != nil {
			params.AdminHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.PolicyHandler != nil {
			params.PolicyHandler.MountRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}
