package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/divyanshdhote/server-actions/internal/auth/credentials"
	"github.com/divyanshdhote/server-actions/internal/auth/provider"
	"github.com/divyanshdhote/server-actions/internal/auth/resolver"
	"github.com/divyanshdhote/server-actions/internal/logger"
	"github.com/divyanshdhote/server-actions/internal/middleware"
	"github.com/divyanshdhote/server-actions/internal/session"
	"github.com/divyanshdhote/server-actions/internal/users"
)

// CredentialService handles email/password accounts.
type CredentialService interface {
	Register(ctx context.Context, in credentials.RegisterInput) (string, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
}

// UserDirectory is the read side of the user store used by handlers.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	Exists(ctx context.Context, username string) (bool, error)
}

// Options carries deployment-specific settings.
type Options struct {
	Cookie            session.CookieOptions
	PostLoginRedirect string
}

type Handler struct {
	providers   *provider.Registry
	sessions    *session.Manager
	auth        *middleware.AuthMiddleware
	credentials CredentialService
	resolver    resolver.Resolver
	users       UserDirectory

	cookie            session.CookieOptions
	postLoginRedirect string
}

func NewHandler(
	registry *provider.Registry,
	sessions *session.Manager,
	credentialService CredentialService,
	resolver resolver.Resolver,
	directory UserDirectory,
	opts Options,
) (*Handler, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}
	if opts.PostLoginRedirect == "" {
		opts.PostLoginRedirect = "/"
	}

	return &Handler{
		providers:         registry,
		sessions:          sessions,
		auth:              middleware.NewAuthMiddleware(sessions, opts.Cookie),
		credentials:       credentialService,
		resolver:          resolver,
		users:             directory,
		cookie:            opts.Cookie,
		postLoginRedirect: opts.PostLoginRedirect,
	}, nil
}

// RegisterRoutes mounts pages, auth endpoints and the protected API.
// limit guards the credential endpoints; nil disables it.
func (h *Handler) RegisterRoutes(r *gin.Engine, limit gin.HandlerFunc) {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	r.GET("/", middleware.GinRedirectAnonymous(h.auth, "/sign-in"), h.home)
	r.GET("/sign-in", middleware.GinRedirectAuthenticated(h.auth, "/"), h.signInPage)
	r.GET("/sign-up", middleware.GinRedirectAuthenticated(h.auth, "/"), h.signUpPage)

	a := r.Group("/auth")
	a.POST("/sign-up", limit, h.SignUp)
	a.POST("/sign-in", limit, h.SignIn)
	a.POST("/sign-out", h.SignOut)
	a.GET("/session", middleware.GinLoadSession(h.auth), h.Session)
	a.GET("/username-available", limit, h.UsernameAvailable)

	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)

	r.GET("/api/me", middleware.GinRequireAuth(h.auth), h.Me)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

// startSession issues a new session and sets its cookie. Any session the
// request already carried is revoked first.
func (h *Handler) startSession(c *gin.Context, userID string) error {
	if old := session.IDFromRequest(c.Request, h.cookie); old != "" {
		_ = h.sessions.Revoke(c.Request.Context(), old)
	}

	s, err := h.sessions.Issue(
		c.Request.Context(),
		userID,
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		return err
	}

	session.SetCookie(c.Writer, s.SessionID, s.ExpiresAt, h.cookie)

	logger.Info("session started", map[string]any{
		"user_id": userID,
		"ip":      c.ClientIP(),
	})
	return nil
}

// wantsJSON reports whether the caller is an API client rather than a
// browser form post.
func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == gin.MIMEJSON {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func internalError(c *gin.Context, msg string, err error) {
	logger.Error(msg, map[string]any{
		"path":  c.FullPath(),
		"error": err,
	})
	_ = c.Error(err)
	abortJSON(c, http.StatusInternalServerError, msg)
}
