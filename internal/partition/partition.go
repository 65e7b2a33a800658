// Package partition manages schema-per-tenant data partitions. Each tenant
// owns one PostgreSQL schema holding its boards, tasks, scheduled tasks and
// audit logs; the shared tables (tenants, users, plans) stay in public.
package partition

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaDDL string

// Partition identifies one tenant's isolated schema. It is a plain value:
// binding is explicit, passed through every repository call on the request's
// path, and dies with the request.
type Partition struct {
	Schema string
}

// Table returns the schema-qualified, sanitized identifier for a table,
// ready for interpolation into SQL.
func (p Partition) Table(name string) string {
	return pgx.Identifier{p.Schema, name}.Sanitize()
}

// SchemaName derives the schema name for a tenant ID.
func SchemaName(tenantID uuid.UUID) string {
	return "tenant_" + strings.ReplaceAll(tenantID.String(), "-", "")
}

// Manager creates and binds tenant partitions.
type Manager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewManager creates a partition manager.
func NewManager(pool *pgxpool.Pool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{pool: pool, logger: logger}
}

// Partition returns the binding for an existing schema.
func (m *Manager) Partition(schema string) Partition {
	return Partition{Schema: schema}
}

// Create provisions the schema for a new tenant and applies the tenant DDL.
// Deactivation is a directory concern; the schema is never dropped here.
func (m *Manager) Create(ctx context.Context, tenantID uuid.UUID) (Partition, error) {
	schema := SchemaName(tenantID)
	quoted := pgx.Identifier{schema}.Sanitize()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return Partition{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return Partition{}, fmt.Errorf("create schema %s: %w", schema, err)
	}
	ddl := strings.ReplaceAll(schemaDDL, "{{schema}}", quoted)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return Partition{}, fmt.Errorf("apply tenant DDL to %s: %w", schema, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Partition{}, fmt.Errorf("commit: %w", err)
	}

	m.logger.Info("tenant partition created", zap.String("schema", schema))
	return Partition{Schema: schema}, nil
}
