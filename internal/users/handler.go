package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// Handler exposes the user grant view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes. The self-or-super-admin rule lives in
// the service, so no permission guard wraps the route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{id}/grants", h.getUserGrants)
}

func (h *Handler) getUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	grants, err := h.service.UserGrants(r.Context(), actor, userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get user grants", slog.Any("error", err), slog.Int64("user_id", userID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
