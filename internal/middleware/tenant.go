package middleware

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/response"
)

// TenantDirectory resolves routing keys to tenant bindings.
type TenantDirectory interface {
	Resolve(ctx context.Context, routingKey string) (*models.TenantBinding, error)
}

// ResolveTenant resolves the request's Host to a tenant and binds its
// partition into the request context. Unknown keys are rejected before any
// partition is bound; inactive tenants are rejected before authentication.
func ResolveTenant(dir TenantDirectory, manager *partition.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := RoutingKey(c.Request.Host)
		if key == "" {
			response.NotFound(c, "unknown tenant")
			c.Abort()
			return
		}
		binding, err := dir.Resolve(c.Request.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrUnknownTenant):
				response.NotFound(c, "unknown tenant")
			case errors.Is(err, models.ErrTenantInactive):
				response.Forbidden(c, "tenant inactive")
			default:
				response.Internal(c, "tenant resolution failed")
			}
			c.Abort()
			return
		}
		c.Set(ContextTenant, binding)
		c.Set(ContextPartition, manager.Partition(binding.Schema))
		c.Next()
	}
}

// RoutingKey normalizes a Host header to the routing key: lowercased host
// without port.
func RoutingKey(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSpace(host))
}
