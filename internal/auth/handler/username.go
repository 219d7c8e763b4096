package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UsernameAvailable checks a username against the directory. The answer is
// advisory: the unique constraint decides at sign-up time.
func (h *Handler) UsernameAvailable(c *gin.Context) {
	var q usernameQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		body := gin.H{"error": "invalid username"}
		if fields := fieldErrors(err); fields != nil {
			body["fields"] = fields
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
		return
	}

	taken, err := h.users.Exists(c.Request.Context(), q.Username)
	if err != nil {
		internalError(c, "failed to check username", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": !taken})
}
