package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// SyncTrigger queues a propagation of the admin template to every tenant.
type SyncTrigger interface {
	TriggerTemplateSync(ctx context.Context) error
}

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	sync      SyncTrigger
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware, sync SyncTrigger) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, sync: sync, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles", "view"))
		r.Get("/roles", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles", "edit"))
		r.Post("/roles", h.createRole)
		r.Patch("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deleteRole)
		if h.sync != nil {
			r.Post("/roles/template-sync", h.triggerTemplateSync)
		}
	})
}

type roleView struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TenantID    *int64    `json:"tenant_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRoleView(r Role) roleView {
	return roleView{ID: r.ID, Key: r.Key, Name: r.Name, Description: r.Description, TenantID: r.TenantID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	roles, err := h.service.ListRoles(r.Context(), actor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var input CreateRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "key and name are required")
		return
	}
	role, err := h.service.CreateRole(r.Context(), actor, input)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create role", slog.Any("error", err), slog.String("key", input.Key))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var input UpdateRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name is required")
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actor, roleID, input)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "update role", slog.Any("error", err), slog.Int64("role_id", roleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteRole(r.Context(), actor, roleID); err != nil {
		h.logger.ErrorContext(r.Context(), "delete role", slog.Any("error", err), slog.Int64("role_id", roleID))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerTemplateSync queues a full propagation run, the same one the nightly
// schedule performs. Reserved for super admins.
func (h *Handler) triggerTemplateSync(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if !actor.SuperAdmin {
		httpx.RespondError(w, fmt.Errorf("template sync is restricted to super admins: %w", shared.ErrScope))
		return
	}
	if err := h.sync.TriggerTemplateSync(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "queue template sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
