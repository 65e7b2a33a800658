package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

const (
	// ContextTenant is the key for the resolved tenant binding in gin context.
	ContextTenant = "tenant_binding"
	// ContextPartition is the key for the bound partition in gin context.
	ContextPartition = "partition"
	// ContextIdentity is the key for the authenticated identity in gin context.
	ContextIdentity = "identity"
)

// TenantFromContext returns the resolved tenant binding. Panics if called on a
// route that skipped tenant resolution; such routes must not need it.
func TenantFromContext(c *gin.Context) *models.TenantBinding {
	return c.MustGet(ContextTenant).(*models.TenantBinding)
}

// PartitionFromContext returns the partition bound for this request.
func PartitionFromContext(c *gin.Context) partition.Partition {
	return c.MustGet(ContextPartition).(partition.Partition)
}

// IdentityFromContext returns the authenticated identity.
func IdentityFromContext(c *gin.Context) *models.Identity {
	return c.MustGet(ContextIdentity).(*models.Identity)
}
