package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smeta-erp/smeta-erp/internal/audit"
	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/permissions"
	"github.com/smeta-erp/smeta-erp/internal/roles"
	"github.com/smeta-erp/smeta-erp/internal/shared"
	"github.com/smeta-erp/smeta-erp/internal/tenants"
	"github.com/smeta-erp/smeta-erp/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	Actors             ActorResolver
	PermissionsHandler *permissions.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	TenantsHandler     *tenants.Handler
	AuditHandler       *audit.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Actors:         params.Actors,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
		if params.RolesHandler != nil {
			params.RolesHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.TenantsHandler != nil {
			params.TenantsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
