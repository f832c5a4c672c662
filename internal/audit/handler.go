package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("administration", "view"))
		r.Get("/audit", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}
	if raw := q.Get("actor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.ActorID = id
		}
	}
	if raw := q.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			filters.Page = page
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			filters.PageSize = size
		}
	}
	return filters
}
