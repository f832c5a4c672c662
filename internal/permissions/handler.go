package permissions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// Handler exposes the permission catalog and role grant endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers catalog and grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles", "view"))
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles/{id}/grants", h.getRoleGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles", "edit"))
		r.Put("/roles/{id}/grants", h.replaceRoleGrants)
	})
	r.Get("/visibility", h.checkVisibility)
}

type permissionView struct {
	ID            int64  `json:"id"`
	Key           string `json:"key"`
	Resource      string `json:"resource"`
	Action        string `json:"action"`
	Description   string `json:"description"`
	DefaultHidden bool   `json:"default_hidden"`
}

type groupView struct {
	Resource    string           `json:"resource"`
	Label       string           `json:"label"`
	Permissions []permissionView `json:"permissions"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGrouped(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		view := groupView{Resource: g.Resource, Label: g.Label, Permissions: make([]permissionView, 0, len(g.Permissions))}
		for _, p := range g.Permissions {
			view.Permissions = append(view.Permissions, permissionView(p))
		}
		views = append(views, view)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": views})
}

type grantView struct {
	PermissionID int64  `json:"permission_id"`
	Key          string `json:"key"`
	Resource     string `json:"resource"`
	Action       string `json:"action"`
	Hidden       bool   `json:"hidden"`
}

func (h *Handler) getRoleGrants(w http.ResponseWriter, r *http.Request) {
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
	grants, err := h.service.RoleGrants(r.Context(), actor, roleID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get role grants", slog.Any("error", err), slog.Int64("role_id", roleID))
		httpx.RespondError(w, err)
		return
	}
	views := make([]grantView, 0, len(grants.Entries))
	for _, g := range grants.Entries {
		views = append(views, grantView(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role_id":               grants.RoleID,
		"grants":                views,
		"permission_ids":        grants.PermissionIDs,
		"hidden_permission_ids": grants.HiddenPermissionIDs,
	})
}

type replaceGrantsRequest struct {
	Grants []GrantEntry `json:"grants" validate:"dive"`
}

func (h *Handler) replaceRoleGrants(w http.ResponseWriter, r *http.Request) {
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
	var req replaceGrantsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "grants must be a list of {permission_id, hidden}")
		return
	}
	result, err := h.service.ReplaceRoleGrants(r.Context(), actor, roleID, req.Grants)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "replace role grants", slog.Any("error", err), slog.Int64("role_id", roleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"granted": result.Granted,
		"hidden":  result.Hidden,
	})
}

func (h *Handler) checkVisibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	resource := r.URL.Query().Get("resource")
	action := r.URL.Query().Get("action")
	if resource == "" || action == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource and action are required")
		return
	}
	visible, err := h.service.VisibilityCheck(r.Context(), actor, resource, action)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "visibility check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"visible": visible})
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
