package tenants

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskhive/backend/internal/models"
)

const (
	resolveCachePrefix = "tenant:resolve:"
	resolveCacheTTL    = 30 * time.Second
)

// Directory is the tenant directory: routing-key resolution with a short-lived
// Redis cache on the hot request path, and the active-tenant snapshot for the
// engine. Only positive, active resolutions are cached so deactivation takes
// effect within the TTL and failures always fail closed against the store.
type Directory struct {
	repo   *Repository
	rdb    *redis.Client
	logger *zap.Logger
}

// NewDirectory creates a directory. rdb may be nil (cache disabled).
func NewDirectory(repo *Repository, rdb *redis.Client, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{repo: repo, rdb: rdb, logger: logger}
}

// Resolve maps a routing key to its tenant binding.
func (d *Directory) Resolve(ctx context.Context, routingKey string) (*models.TenantBinding, error) {
	if d.rdb != nil {
		if raw, err := d.rdb.Get(ctx, resolveCachePrefix+routingKey).Bytes(); err == nil {
			var b models.TenantBinding
			if json.Unmarshal(raw, &b) == nil && b.Active {
				return &b, nil
			}
		}
	}

	b, err := d.repo.Resolve(ctx, routingKey)
	if err != nil {
		return nil, err
	}

	if d.rdb != nil {
		if raw, err := json.Marshal(b); err == nil {
			if err := d.rdb.Set(ctx, resolveCachePrefix+routingKey, raw, resolveCacheTTL).Err(); err != nil {
				d.logger.Warn("tenant cache set failed", zap.String("routing_key", routingKey), zap.Error(err))
			}
		}
	}
	return b, nil
}

// ListActive returns the active-tenant snapshot, bypassing the cache.
func (d *Directory) ListActive(ctx context.Context) ([]models.TenantBinding, error) {
	return d.repo.ListActive(ctx)
}

// Invalidate drops cached resolutions for a tenant's routing keys. Called on
// directory mutation (deactivate, domain changes).
func (d *Directory) Invalidate(ctx context.Context, domains []string) {
	if d.rdb == nil {
		return
	}
	for _, domain := range domains {
		if err := d.rdb.Del(ctx, resolveCachePrefix+domain).Err(); err != nil {
			d.logger.Warn("tenant cache invalidate failed", zap.String("routing_key", domain), zap.Error(err))
		}
	}
}
