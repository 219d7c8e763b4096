package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/divyanshdhote/server-actions/internal/auth/credentials"
	"github.com/divyanshdhote/server-actions/internal/session"
	"github.com/divyanshdhote/server-actions/internal/users"
	"github.com/divyanshdhote/server-actions/internal/web"
)

func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBind(&req); err != nil {
		h.signUpFailed(c, req, http.StatusBadRequest, fieldErrors(err), "invalid request")
		return
	}

	userID, err := h.credentials.Register(c.Request.Context(), credentials.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrAlreadyRegistered):
			h.signUpFailed(c, req, http.StatusConflict,
				map[string]string{"email": "An account with this email already exists"}, "account already exists")
		case errors.Is(err, users.ErrUsernameTaken):
			h.signUpFailed(c, req, http.StatusConflict,
				map[string]string{"username": "Username is already taken"}, "username already taken")
		case errors.Is(err, credentials.ErrPasswordTooShort):
			h.signUpFailed(c, req, http.StatusBadRequest,
				map[string]string{"password": "Password must be at least 8 characters"}, "invalid request")
		case errors.Is(err, credentials.ErrPasswordTooLong):
			h.signUpFailed(c, req, http.StatusBadRequest,
				map[string]string{"password": "Password must be no more than 72 bytes"}, "invalid request")
		default:
			internalError(c, "failed to create account", err)
		}
		return
	}

	if err := h.startSession(c, userID); err != nil {
		internalError(c, "session error", err)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{"status": "registered", "user_id": userID})
		return
	}
	c.Redirect(http.StatusSeeOther, h.postLoginRedirect)
}

func (h *Handler) signUpFailed(c *gin.Context, req signUpRequest, status int, fields map[string]string, msg string) {
	if wantsJSON(c) {
		body := gin.H{"error": msg}
		if len(fields) > 0 {
			body["fields"] = fields
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	c.HTML(status, web.PageSignUp, web.SignUpData{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Error:    formError(fields, msg),
		Errors:   fields,
	})
	c.Abort()
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBind(&req); err != nil {
		h.signInFailed(c, req.Email, http.StatusBadRequest, fieldErrors(err), "invalid request")
		return
	}

	userID, err := h.credentials.Authenticate(
		c.Request.Context(),
		req.Email,
		req.Password,
	)
	if errors.Is(err, credentials.ErrInvalidCredentials) {
		h.signInFailed(c, req.Email, http.StatusUnauthorized, nil, "invalid credentials")
		return
	}
	if err != nil {
		internalError(c, "failed to sign in", err)
		return
	}

	if err := h.startSession(c, userID); err != nil {
		internalError(c, "session error", err)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
		return
	}
	c.Redirect(http.StatusSeeOther, h.postLoginRedirect)
}

func (h *Handler) signInFailed(c *gin.Context, email string, status int, fields map[string]string, msg string) {
	if wantsJSON(c) {
		body := gin.H{"error": msg}
		if len(fields) > 0 {
			body["fields"] = fields
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	c.HTML(status, web.PageSignIn, web.SignInData{
		Email:     email,
		Error:     formError(fields, msg),
		Errors:    fields,
		Providers: h.providers.Names(),
	})
	c.Abort()
}

// SignOut is idempotent: it succeeds with or without a live session.
func (h *Handler) SignOut(c *gin.Context) {
	if id := session.IDFromRequest(c.Request, h.cookie); id != "" {
		// best-effort; the cookie is cleared regardless
		_ = h.sessions.Revoke(c.Request.Context(), id)
	}

	session.ClearCookie(c.Writer, h.cookie)

	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// formError is the banner shown above a form. Field problems are shown
// next to their inputs, so the banner is only used for the rest.
func formError(fields map[string]string, msg string) string {
	if len(fields) > 0 {
		return ""
	}
	if msg == "invalid credentials" {
		return "Invalid email or password"
	}
	return msg
}
