package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/divyanshdhote/server-actions/internal/auth/resolver"
	"github.com/divyanshdhote/server-actions/internal/auth/username"
	"github.com/divyanshdhote/server-actions/internal/logger"
)

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "unknown oauth provider")
		return
	}

	state, err := h.generateState(c)
	if err != nil {
		internalError(c, "failed to start oauth flow", err)
		return
	}
	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		internalError(c, "failed to start oauth flow", err)
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "unknown oauth provider")
		return
	}

	if !validateState(c) {
		abortJSON(c, http.StatusUnauthorized, "invalid state")
		return
	}

	codeVerifier := getPKCEVerifier(c)

	// One-shot values: clear them whatever the outcome.
	h.setFlowCookie(c, stateCookieName, "", -1)
	h.setFlowCookie(c, pkceCookieName, "", -1)

	// Provider-side error, e.g. the user cancelled consent.
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})

		c.Redirect(http.StatusFound, "/sign-in")
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", map[string]any{
			"provider": providerName,
		})
		abortJSON(c, http.StatusBadRequest, "missing authorization code")
		return
	}

	if codeVerifier == "" {
		abortJSON(c, http.StatusUnauthorized, "missing pkce verifier")
		return
	}

	identity, err := p.ExchangeCode(
		c.Request.Context(),
		code,
		codeVerifier,
	)
	if err != nil {
		logger.Warn("oauth code exchange failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		abortJSON(c, http.StatusUnauthorized, "authentication failed")
		return
	}

	userID, err := h.resolver.Resolve(c.Request.Context(), identity)
	if err != nil {
		h.provisioningFailed(c, providerName, err)
		return
	}

	if err := h.startSession(c, userID); err != nil {
		internalError(c, "failed to create session", err)
		return
	}

	logger.Info("oauth sign-in succeeded", map[string]any{
		"provider": providerName,
		"user_id":  userID,
	})

	c.Redirect(http.StatusFound, h.postLoginRedirect)
}

// provisioningFailed maps account resolution errors to responses.
func (h *Handler) provisioningFailed(c *gin.Context, providerName string, err error) {
	logger.Error("failed to resolve user", map[string]any{
		"provider": providerName,
		"error":    err,
	})
	_ = c.Error(err)

	switch {
	case errors.Is(err, username.ErrDirectoryUnavailable):
		abortJSON(c, http.StatusServiceUnavailable, "user directory unavailable, try again")
	case errors.Is(err, username.ErrResolutionExhausted),
		errors.Is(err, resolver.ErrProvisioningConflict):
		abortJSON(c, http.StatusConflict, "could not allocate a username")
	default:
		abortJSON(c, http.StatusInternalServerError, "failed to resolve user")
	}
}
