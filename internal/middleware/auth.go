package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxEmailKey     = "userEmail"
	CtxRoleKey      = "userRole"
	CtxSessionIDKey = "sessionID"
)

// Auth enforces JWT authentication and session liveness. A token whose
// session has been invalidated (role change, logout, expiry) is rejected even
// when the JWT itself is still within its validity window.
func Auth(jwt *iauth.JWTService, registry *iauth.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if registry != nil && claims.SessionID != "" {
			if _, ok := registry.Lookup(claims.SessionID); !ok {
				c.Header("WWW-Authenticate", "Bearer")
				response.Error(c, errors.ErrUnauthorized)
				c.Abort()
				return
			}
			registry.Touch(claims.SessionID)
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxEmailKey, claims.Email)
		c.Set(CtxRoleKey, claims.Role)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}
