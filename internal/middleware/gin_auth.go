package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextUserIDKey is the gin context key holding the authenticated user id.
const ContextUserIDKey = "userID"

// GinRequireAuth adapts the net/http AuthMiddleware to Gin.
// Auth decisions stay session-based and provider-agnostic.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			if id, ok := UserIDFromContext(r.Context()); ok {
				c.Set(ContextUserIDKey, id)
			}
			c.Next()
		})

		auth.RequireAuth(next).ServeHTTP(c.Writer, c.Request)

		// If auth middleware already handled the response, stop Gin chain
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// GinLoadSession attaches the session when one exists and never rejects.
func GinLoadSession(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		attach(c, auth)
		c.Next()
	}
}

// GinRedirectAnonymous sends visitors without a session to target.
func GinRedirectAnonymous(auth *AuthMiddleware, target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !attach(c, auth) {
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GinRedirectAuthenticated sends visitors that already have a session to target.
func GinRedirectAuthenticated(auth *AuthMiddleware, target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if attach(c, auth) {
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

func attach(c *gin.Context, auth *AuthMiddleware) bool {
	s := auth.Authenticate(c.Writer, c.Request)
	if s == nil {
		return false
	}
	c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
	c.Set(ContextUserIDKey, s.UserID)
	return true
}
