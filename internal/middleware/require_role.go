package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
)

// RequireRole aborts the request unless the authenticated principal holds at
// least the given role. Must run after Auth.
func RequireRole(minimum models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString(CtxRoleKey))
		if !role.Valid() || !role.AtLeast(minimum) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
