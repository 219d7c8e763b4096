package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/divyanshdhote/server-actions/internal/web"
)

func (h *Handler) home(c *gin.Context) {
	u, _, err := h.currentUser(c)
	if err != nil {
		internalError(c, "failed to load user", err)
		return
	}
	if u == nil {
		c.Redirect(http.StatusFound, "/sign-in")
		return
	}

	c.HTML(http.StatusOK, web.PageHome, web.HomeData{Name: u.Name})
}

func (h *Handler) signInPage(c *gin.Context) {
	c.HTML(http.StatusOK, web.PageSignIn, web.SignInData{
		Providers: h.providers.Names(),
	})
}

func (h *Handler) signUpPage(c *gin.Context) {
	c.HTML(http.StatusOK, web.PageSignUp, web.SignUpData{})
}
