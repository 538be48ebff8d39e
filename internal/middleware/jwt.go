package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserRoles is the key for the session's global roles in gin context.
	ContextUserRoles = auth.ContextUserRoles
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = auth.ContextUserEmail
)

// JWT returns a middleware that validates the session token and sets user
// claims in context. The token is read from the Authorization header first,
// then from the session cookie.
func JWT(sessions *auth.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if token == "" {
			token, _ = c.Cookie(sessions.CookieName())
		}
		if token == "" {
			response.Unauthorized(c, "missing session")
			c.Abort()
			return
		}
		claims, err := sessions.JWT().Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRoles, claims.Roles)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// bearer returns the header token. ok is false for a malformed header.
func bearer(c *gin.Context) (token string, ok bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
