package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/rbac"
	"github.com/wondershark/backend/pkg/response"
)

// RequireRole returns a middleware that allows sessions holding any of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRoles); !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		for _, r := range auth.Roles(c) {
			if _, ok := allowed[r]; ok {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}

// RequirePermission checks permission against the live role assignments, so a
// revoked role takes effect before the session token expires.
func RequirePermission(authz rbac.Authorizer, permission string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == uuid.Nil {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		ok, err := authz.HasPermission(c.Request.Context(), userID, permission)
		if err != nil {
			logger.Error("permission check failed", zap.String("permission", permission), zap.Error(err))
			response.Internal(c, "failed to check permissions")
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
