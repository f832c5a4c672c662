package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager reads cookie based sessions backed by Redis. Sessions are
// created by the authentication service; this side only resolves and renews
// them.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID     string
	UserID int64
}

type sessionPayload struct {
	UserID int64 `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Load resolves the session referenced by the request cookie. A request
// without a cookie or with an expired session yields a nil session, not an
// error.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	return &Session{ID: cookie.Value, UserID: stored.UserID}, nil
}

// Touch extends the session TTL after successful resolution.
func (sm *SessionManager) Touch(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	return sm.client.Expire(ctx, sm.redisKey(sess.ID), sm.ttl).Err()
}

// Create stores a new session and writes its cookie. Used by the external
// authentication flow and by tests.
func (sm *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID int64) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), UserID: userID}
	payload, err := json.Marshal(sessionPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), payload, sm.ttl).Err(); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return sess, nil
}

// Destroy removes the session from the store and expires the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return nil
}

func (sm *SessionManager) redisKey(id string) string {
	return fmt.Sprintf("smeta:session:%s", id)
}
