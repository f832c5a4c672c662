package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/platform/httpx"
	"github.com/smeta-erp/smeta-erp/internal/shared"
	_ "github.com/smeta-erp/smeta-erp/internal/testing/guard"
)

type stubActors struct {
	actors map[int64]authz.Actor
}

func (s *stubActors) Actor(ctx context.Context, userID int64) (authz.Actor, error) {
	actor, ok := s.actors[userID]
	if !ok {
		return authz.Actor{}, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	return actor, nil
}

func testRouter(t *testing.T) (*chi.Mux, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "smeta_session", time.Hour, false)
	actors := &stubActors{actors: map[int64]authz.Actor{
		7: authz.NewActor(7, 3, false, "roles.view"),
	}}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         slog.Default(),
		SessionManager: sessions,
		Actors:         actors,
	}) {
		r.Use(mw)
	}
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor, ok := authz.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"user_id": actor.UserID, "tenant_id": actor.TenantID})
	})
	return r, sessions
}

func TestActorMiddlewareWithoutSession(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorMiddlewareResolvesSessionActor(t *testing.T) {
	router, sessions := testRouter(t)

	seed := httptest.NewRecorder()
	_, err := sessions.Create(context.Background(), seed, 7)
	require.NoError(t, err)
	cookie := seed.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":7`)
}

func TestActorMiddlewareUnknownUserStaysAnonymous(t *testing.T) {
	router, sessions := testRouter(t)

	seed := httptest.NewRecorder()
	_, err := sessions.Create(context.Background(), seed, 99)
	require.NoError(t, err)
	cookie := seed.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
