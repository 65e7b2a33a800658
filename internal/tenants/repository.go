package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

// Resolution errors are shared sentinels so the pipeline can map them without
// importing this package's internals.
var (
	ErrUnknownTenant  = models.ErrUnknownTenant
	ErrTenantInactive = models.ErrTenantInactive
)

// Repository handles tenant, domain and subscription persistence in the shared store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Resolve maps a routing key (domain) to a tenant binding. Unknown keys return
// ErrUnknownTenant; deactivated or lapsed tenants return ErrTenantInactive.
func (r *Repository) Resolve(ctx context.Context, routingKey string) (*models.TenantBinding, error) {
	const q = `SELECT t.id, t.name, t.schema_name, t.is_active, s.is_active, s.end_date
		FROM tenant_domains d
		INNER JOIN tenants t ON t.id = d.tenant_id
		LEFT JOIN subscriptions s ON s.id = t.subscription_id
		WHERE d.domain = $1`
	var (
		b         models.TenantBinding
		subActive *bool
		subEnd    *time.Time
	)
	err := r.pool.QueryRow(ctx, q, routingKey).Scan(&b.TenantID, &b.Name, &b.Schema, &b.Active, &subActive, &subEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownTenant
		}
		return nil, fmt.Errorf("resolve %q: %w", routingKey, err)
	}
	b.Active = b.Active && subscriptionLive(subActive, subEnd, time.Now())
	if !b.Active {
		return &b, ErrTenantInactive
	}
	return &b, nil
}

// ListActive returns a snapshot of all active tenant bindings, used by the
// scheduled-task engine. Activation state is as of call time.
func (r *Repository) ListActive(ctx context.Context) ([]models.TenantBinding, error) {
	const q = `SELECT t.id, t.name, t.schema_name, s.is_active, s.end_date
		FROM tenants t
		LEFT JOIN subscriptions s ON s.id = t.subscription_id
		WHERE t.is_active = TRUE
		ORDER BY t.created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()
	now := time.Now()
	var list []models.TenantBinding
	for rows.Next() {
		var (
			b         models.TenantBinding
			subActive *bool
			subEnd    *time.Time
		)
		if err := rows.Scan(&b.TenantID, &b.Name, &b.Schema, &subActive, &subEnd); err != nil {
			return nil, err
		}
		if !subscriptionLive(subActive, subEnd, now) {
			continue
		}
		b.Active = true
		list = append(list, b)
	}
	return list, rows.Err()
}

func subscriptionLive(active *bool, end *time.Time, now time.Time) bool {
	if active == nil {
		return true // no subscription row yet, e.g. fresh signup
	}
	if !*active {
		return false
	}
	return end == nil || !end.Before(now.Truncate(24*time.Hour))
}

// CreateParams holds the inputs for tenant creation.
type CreateParams struct {
	Name   string
	Domain string
	PlanID *uuid.UUID
}

// Create inserts subscription, tenant and primary domain rows in one
// transaction. The caller provisions the partition afterwards.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Tenant, error) {
	tenantID, err := uuid.NewV7()
	if err != nil {
		tenantID = uuid.New()
	}
	schema := partition.SchemaName(tenantID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var subID uuid.UUID
	maxUsers, maxTasks := 5, 100
	if p.PlanID != nil {
		if err := tx.QueryRow(ctx,
			`SELECT max_users, max_tasks FROM subscription_plans WHERE id = $1`, *p.PlanID,
		).Scan(&maxUsers, &maxTasks); err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO subscriptions (plan_id, is_active) VALUES ($1, TRUE) RETURNING id`, p.PlanID,
	).Scan(&subID); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	t := &models.Tenant{
		ID:             tenantID,
		Name:           p.Name,
		Schema:         schema,
		SubscriptionID: &subID,
		IsActive:       true,
		MaxUsers:       maxUsers,
		MaxTasks:       maxTasks,
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO tenants (id, name, schema_name, subscription_id, is_active, max_users, max_tasks)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Schema, subID, maxUsers, maxTasks,
	).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO tenant_domains (tenant_id, domain, is_primary) VALUES ($1, $2, TRUE)`,
		t.ID, p.Domain,
	); err != nil {
		return nil, fmt.Errorf("create domain: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// AddDomain adds a routing key for an existing tenant.
func (r *Repository) AddDomain(ctx context.Context, tenantID uuid.UUID, domain string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenant_domains (tenant_id, domain, is_primary) VALUES ($1, $2, FALSE)`,
		tenantID, domain)
	return err
}

// Deactivate flips the tenant kill-switch. The partition is untouched.
func (r *Repository) Deactivate(ctx context.Context, tenantID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownTenant
	}
	return nil
}

// Domains returns all routing keys for a tenant (for cache invalidation).
func (r *Repository) Domains(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT domain FROM tenant_domains WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListPlans returns all subscription plans (public, shared reference data).
func (r *Repository) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	const q = `SELECT id, display_name, description, price, currency, max_users, max_tasks, created_at
		FROM subscription_plans ORDER BY price`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SubscriptionPlan
	for rows.Next() {
		var p models.SubscriptionPlan
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Description, &p.Price, &p.Currency,
			&p.MaxUsers, &p.MaxTasks, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// UserCapacity returns how many active identities a tenant has against its
// plan limit.
func (r *Repository) UserCapacity(ctx context.Context, tenantID uuid.UUID) (used, max int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM users WHERE tenant_id = t.id AND is_active = TRUE), t.max_users
		 FROM tenants t WHERE t.id = $1`, tenantID).Scan(&used, &max)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrUnknownTenant
	}
	return used, max, err
}
