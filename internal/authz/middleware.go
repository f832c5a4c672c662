package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers. Every protected
// route group mounts one of the Require* wrappers.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequirePermission guards a route group with a single (resource, action) check.
func (m Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated actor")
				return
			}
			d := CheckPermission(actor, resource, action)
			m.Metrics.ObserveDecision("permission", d.Allowed)
			if !d.Allowed {
				m.deny(w, r, actor, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the actor passes at least one of the supplied pairs.
func (m Middleware) RequireAny(refs ...Ref) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated actor")
				return
			}
			d := CheckAnyPermission(actor, refs...)
			m.Metrics.ObserveDecision("any", d.Allowed)
			if !d.Allowed {
				m.deny(w, r, actor, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll ensures the actor passes every supplied pair.
func (m Middleware) RequireAll(refs ...Ref) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated actor")
				return
			}
			d := CheckAllPermissions(actor, refs...)
			m.Metrics.ObserveDecision("all", d.Allowed)
			if !d.Allowed {
				m.deny(w, r, actor, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestOwnerResolver derives an owner lookup from the incoming request,
// typically reading a path parameter and querying the owning module's store.
type RequestOwnerResolver func(r *http.Request) OwnerResolver

// RequireOwnership guards a route with an ownership check on resource.
func (m Middleware) RequireOwnership(resource string, resolver RequestOwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated actor")
				return
			}
			err := CheckOwnership(r.Context(), actor, resource, resolver(r))
			m.Metrics.ObserveDecision("ownership", err == nil)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrNotOwner):
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "not the resource owner")
			case errors.Is(err, shared.ErrNotFound):
				httpx.RespondError(w, err)
			default:
				if m.Logger != nil {
					m.Logger.ErrorContext(r.Context(), "ownership check", slog.Any("error", err), slog.Int64("user_id", actor.UserID))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			}
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, actor Actor, d Decision) {
	if m.Logger != nil {
		m.Logger.WarnContext(r.Context(), "access denied",
			slog.Int64("user_id", actor.UserID),
			slog.Int64("tenant_id", actor.TenantID),
			slog.Any("error", d.Err()))
	}
	extensions := map[string]any{}
	switch {
	case len(d.Missing) > 0:
		extensions["missing"] = d.Missing
	case len(d.RequiredAny) > 0:
		extensions["required_any"] = d.RequiredAny
	default:
		extensions["required"] = d.Required
	}
	httpx.ProblemWith(w, http.StatusForbidden, "Permission Denied", d.Err().Error(), extensions)
}
