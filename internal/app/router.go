package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/counsel-pm/counsel/internal/audit"
	"github.com/counsel-pm/counsel/internal/auth"
	"github.com/counsel-pm/counsel/internal/cases"
	"github.com/counsel-pm/counsel/internal/firms"
	"github.com/counsel-pm/counsel/internal/observability"
	"github.com/counsel-pm/counsel/internal/platform/httpx"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/roles"
	"github.com/counsel-pm/counsel/internal/users"
	"github.com/counsel-pm/counsel/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	RBACMiddleware rbac.Middleware

	CatalogHandler *rbac.CatalogHandler
	AuthHandler    *auth.Handler
	FirmsHandler   *firms.Handler
	RolesHandler   *roles.Handler
	MembersHandler *users.Handler
	CasesHandler   *cases.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler

	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLogging {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.CatalogHandler != nil {
		r.Route("/authz", params.CatalogHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)
		if params.FirmsHandler != nil {
			params.FirmsHandler.MountRoutes(r)
		}
		if params.RolesHandler != nil {
			r.Route("/firms/{firmID}/roles", params.RolesHandler.MountRoutes)
		}
		if params.MembersHandler != nil {
			r.Route("/firms/{firmID}/members", params.MembersHandler.MountRoutes)
		}
		if params.CasesHandler != nil {
			r.Route("/firms/{firmID}/cases", params.CasesHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/firms/{firmID}/audit", params.AuditHandler.MountRoutes)
		}
	})

	return r
}
