package middleware

import (
	"context"
	"net/http"

	"github.com/divyanshdhote/server-actions/internal/logger"
	"github.com/divyanshdhote/server-actions/internal/session"
)

// unexported, collision-proof context keys
type userIDContextKeyType struct{}
type sessionContextKeyType struct{}

var (
	userIDKey  = userIDContextKeyType{}
	sessionKey = sessionContextKeyType{}
)

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// SessionFromContext returns the validated session attached by the middleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// WithSession attaches s and its user id to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return context.WithValue(ctx, userIDKey, s.UserID)
}

type AuthMiddleware struct {
	Sessions *session.Manager
	Cookie   session.CookieOptions
}

func NewAuthMiddleware(sessions *session.Manager, cookie session.CookieOptions) *AuthMiddleware {
	return &AuthMiddleware{Sessions: sessions, Cookie: cookie}
}

// Authenticate resolves the request's session cookie. It returns nil when
// the request carries no live session. A refreshed expiry is written back
// to the cookie.
func (a *AuthMiddleware) Authenticate(w http.ResponseWriter, r *http.Request) *session.Session {
	id := session.IDFromRequest(r, a.Cookie)
	if id == "" {
		return nil
	}

	s, err := a.Sessions.Validate(r.Context(), id)
	if err != nil {
		logger.Error("session lookup failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if s == nil {
		session.ClearCookie(w, a.Cookie)
		return nil
	}

	session.SetCookie(w, s.SessionID, s.ExpiresAt, a.Cookie)
	return s
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.Authenticate(w, r)
		if s == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}
