package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskhive/backend/internal/access"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/metrics"
	"github.com/taskhive/backend/pkg/response"
)

// Authenticator validates a credential and returns its identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*models.Identity, error)
}

// ViolationRecorder writes a cross-tenant rejection into the bound partition's
// audit log. Best-effort; failure never blocks the rejection.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, part partition.Partition, ident *models.Identity, routingKey, ip, userAgent string) error
}

// Authenticate validates the bearer token and loads the identity into the
// request context. The response never reveals which identity check failed.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		ident, err := auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			response.Unauthorized(c, "authentication failed")
			c.Abort()
			return
		}
		c.Set(ContextIdentity, ident)
		c.Next()
	}
}

// VerifyTenant enforces the mandatory identity/tenant match on every
// authenticated request. A structurally valid credential presented against
// another tenant's routing key is rejected here, logged at elevated severity,
// counted, and audited.
func VerifyTenant(recorder ViolationRecorder, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFromContext(c)
		binding := TenantFromContext(c)
		if err := access.TenantMatch(ident, binding.TenantID); err != nil {
			logger.Error("cross-tenant violation",
				zap.String("identity_id", ident.ID.String()),
				zap.String("identity_tenant", ident.TenantID.String()),
				zap.String("bound_tenant", binding.TenantID.String()),
				zap.String("routing_key", RoutingKey(c.Request.Host)),
				zap.String("client_ip", c.ClientIP()),
			)
			metrics.CrossTenantRejections.Inc()
			if recorder != nil {
				if recErr := recorder.RecordViolation(c.Request.Context(), PartitionFromContext(c),
					ident, RoutingKey(c.Request.Host), c.ClientIP(), c.Request.UserAgent()); recErr != nil {
					logger.Warn("violation audit write failed", zap.Error(recErr))
				}
			}
			// Generic category only: never distinguish wrong tenant from other
			// authorization failures in the response.
			response.Forbidden(c, "access denied")
			c.Abort()
			return
		}
		c.Next()
	}
}
