package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/divyanshdhote/server-actions/internal/middleware"
	"github.com/divyanshdhote/server-actions/internal/session"
	"github.com/divyanshdhote/server-actions/internal/users"
)

type userResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	EmailVerified   bool      `json:"emailVerified"`
	Username        string    `json:"username"`
	DisplayUsername string    `json:"displayUsername"`
	Image           string    `json:"image,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newUserResponse(u *users.User) userResponse {
	return userResponse{
		ID:              u.ID.String(),
		Name:            u.Name,
		Email:           u.Email,
		EmailVerified:   u.EmailVerified,
		Username:        u.Username,
		DisplayUsername: u.DisplayUsername,
		Image:           u.Image,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// sessionResponse omits the session id; it only travels in the cookie.
type sessionResponse struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
	}
}

// currentUser loads the user behind the request's session. A session whose
// user no longer exists is revoked and reported as absent.
func (h *Handler) currentUser(c *gin.Context) (*users.User, *session.Session, error) {
	s, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		return nil, nil, nil
	}

	id, err := uuid.Parse(s.UserID)
	if err != nil {
		_ = h.sessions.Revoke(c.Request.Context(), s.SessionID)
		session.ClearCookie(c.Writer, h.cookie)
		return nil, nil, nil
	}

	u, err := h.users.GetByID(c.Request.Context(), id)
	if errors.Is(err, users.ErrNotFound) {
		_ = h.sessions.Revoke(c.Request.Context(), s.SessionID)
		session.ClearCookie(c.Writer, h.cookie)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return u, s, nil
}

// Session reports the current user and session, or null.
func (h *Handler) Session(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	u, s, err := h.currentUser(c)
	if err != nil {
		internalError(c, "failed to load session", err)
		return
	}
	if u == nil {
		c.JSON(http.StatusOK, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    newUserResponse(u),
		"session": newSessionResponse(s),
	})
}

func (h *Handler) Me(c *gin.Context) {
	u, _, err := h.currentUser(c)
	if err != nil {
		internalError(c, "failed to load user", err)
		return
	}
	if u == nil {
		abortJSON(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(u))
}
