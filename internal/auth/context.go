package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by the session middleware.
const (
	ContextUserID    = "user_id"
	ContextUserRoles = "user_roles"
	ContextUserEmail = "user_email"
)

// UserID returns the authenticated user's ID, or uuid.Nil outside a session.
func UserID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// Roles returns the global roles carried by the session.
func Roles(c *gin.Context) []string {
	v, ok := c.Get(ContextUserRoles)
	if !ok {
		return nil
	}
	roles, _ := v.([]string)
	return roles
}
