// Package session issues signed session cookies backed by a SessionStore
// and gates handlers on a logged-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/padmasuda/expensetracker/internal/auth"
	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("no active session")

type contextKey string

const userKey contextKey = "user"

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// UserID returns the authenticated user's id, or "".
func UserID(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

// Manager creates, validates and destroys sessions.
type Manager struct {
	store    storage.SessionStore
	codec    *securecookie.SecureCookie
	duration time.Duration
	secure   bool
	now      func() time.Time
}

// NewManager returns a Manager signing cookies with secret.
func NewManager(store storage.SessionStore, secret []byte, duration time.Duration, secure bool) *Manager {
	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(duration.Seconds()))
	return &Manager{
		store:    store,
		codec:    codec,
		duration: duration,
		secure:   secure,
		now:      time.Now,
	}
}

func (m *Manager) setCookie(w http.ResponseWriter, token string) error {
	encoded, err := m.codec.Encode(CookieName, token)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.duration.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var token string
	if err := m.codec.Decode(CookieName, cookie.Value, &token); err != nil {
		return "", false
	}
	return token, true
}

// Start creates a session for userID and sets the cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, userID string) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	if err := m.store.CreateSession(ctx, token, userID, m.now().Add(m.duration)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return m.setCookie(w, token)
}

// End deletes the request's session, if any, and clears the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if token, ok := m.token(r); ok {
		if err := m.store.DeleteSession(ctx, token); err != nil {
			logging.FromContext(ctx).WithError(err).Error("Failed to delete session")
		}
	}
	m.clearCookie(w)
}

// Load validates the request's session and returns its user. Past the
// halfway point of its lifetime the session is renewed, so active users stay
// logged in while idle sessions still expire. Invalid cookies are cleared.
func (m *Manager) Load(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.User, error) {
	token, ok := m.token(r)
	if !ok {
		if _, err := r.Cookie(CookieName); err == nil {
			m.clearCookie(w)
		}
		return nil, ErrNoSession
	}

	info, err := m.store.ValidateSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		m.clearCookie(w)
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}

	now := m.now()
	if info.ExpiresAt.Sub(now) < m.duration/2 {
		if err := m.store.RenewSession(ctx, token, now.Add(m.duration)); err != nil {
			// Keep serving on the current session.
			logging.FromContext(ctx).WithError(err).Warn("Failed to renew session")
		} else if err := m.setCookie(w, token); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to refresh session cookie")
		}
	}
	return info.User, nil
}

// Current reports the logged-in user without touching the response.
func (m *Manager) Current(ctx context.Context, r *http.Request) *models.User {
	token, ok := m.token(r)
	if !ok {
		return nil
	}
	info, err := m.store.ValidateSession(ctx, token)
	if err != nil {
		return nil
	}
	return info.User
}

// RequireAPI answers 401 "Login required" when there is no session.
func (m *Manager) RequireAPI(next http.Handler) http.Handler {
	return m.require(next, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Login required", http.StatusUnauthorized)
	})
}

// RequirePage redirects to /login when there is no session.
func (m *Manager) RequirePage(next http.Handler) http.Handler {
	return m.require(next, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func (m *Manager) require(next http.Handler, deny http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Load(r.Context(), w, r)
		if errors.Is(err, ErrNoSession) {
			deny(w, r)
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("Session lookup failed")
			http.Error(w, "Server error", http.StatusInternalServerError)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = logging.WithEntry(ctx, logging.FromContext(ctx).WithField(logging.FieldUserID, user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sweep removes expired sessions every interval until ctx is done.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.store.CleanExpiredSessions(ctx)
			if err != nil {
				logging.FromContext(ctx).WithError(err).Error("Failed to clean expired sessions")
				continue
			}
			if n > 0 {
				logging.FromContext(ctx).WithField("removed", n).Info("Cleaned expired sessions")
			}
		}
	}
}
