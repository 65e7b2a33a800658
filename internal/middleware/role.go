package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/internal/access"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/pkg/response"
)

// RequireRole returns a middleware that allows only identities holding at
// least the given role. Call after VerifyTenant.
func RequireRole(required models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFromContext(c)
		if err := access.Role(ident, required); err != nil {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireWritable rejects restricted identities on mutating routes,
// regardless of role.
func RequireWritable() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFromContext(c)
		if err := access.Writable(ident); err != nil {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
