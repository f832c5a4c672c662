package tenants

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// ListerPort defines data access methods for the tenant directory.
type ListerPort interface {
	GetTenant(ctx context.Context, tenantID int64) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// Handler exposes the tenant directory for administration UIs.
type Handler struct {
	logger *slog.Logger
	repo   ListerPort
	guard  authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo ListerPort, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, guard: guard}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("tenants", "view"))
		r.Get("/tenants", h.listTenants)
		r.Get("/tenants/{id}", h.getTenant)
	})
}

type tenantView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.ListTenants(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list tenants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]tenantView, 0, len(all))
	for _, t := range all {
		views = append(views, tenantView(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": views})
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("invalid id %q: %w", raw, shared.ErrValidation))
		return
	}
	tenant, err := h.repo.GetTenant(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get tenant", slog.Any("error", err), slog.Int64("tenant_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenantView(tenant))
}
