package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestWithActor(actor Actor) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	return r.WithContext(ContextWithActor(r.Context(), actor))
}

func TestRequirePermissionAllowsGrantHolder(t *testing.T) {
	mw := Middleware{Metrics: observability.NewMetrics()}
	handler := mw.RequirePermission("roles", "view")(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithActor(NewActor(1, 1, false, "roles.view")))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequirePermissionWithoutActorIs401(t *testing.T) {
	mw := Middleware{Metrics: observability.NewMetrics()}
	handler := mw.RequirePermission("roles", "view")(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequirePermissionDenialCarriesRequiredKey(t *testing.T) {
	mw := Middleware{Metrics: observability.NewMetrics()}
	handler := mw.RequirePermission("roles", "edit")(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithActor(NewActor(1, 1, false, "roles.view")))
	require.Equal(t, http.StatusForbidden, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Permission Denied", problem.Title)
	require.Equal(t, "roles.edit", problem.Extensions["required"])
}

func TestRequireAllDenialListsEveryMissingKey(t *testing.T) {
	mw := Middleware{Metrics: observability.NewMetrics()}
	handler := mw.RequireAll(Ref{"users", "edit"}, Ref{"roles", "edit"})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithActor(NewActor(1, 1, false)))
	require.Equal(t, http.StatusForbidden, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.ElementsMatch(t, []any{"users.edit", "roles.edit"}, problem.Extensions["missing"])
}

func TestRequireOwnership(t *testing.T) {
	mw := Middleware{Metrics: observability.NewMetrics()}
	handler := mw.RequireOwnership("estimates", func(*http.Request) OwnerResolver {
		return func(context.Context) (int64, bool, error) { return 42, true, nil }
	})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithActor(NewActor(42, 1, false)))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithActor(NewActor(7, 1, false)))
	require.Equal(t, http.StatusForbidden, rr.Code)

	missing := mw.RequireOwnership("estimates", func(*http.Request) OwnerResolver {
		return func(context.Context) (int64, bool, error) { return 0, false, nil }
	})(okHandler())
	rr = httptest.NewRecorder()
	missing.ServeHTTP(rr, requestWithActor(NewActor(7, 1, false)))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
