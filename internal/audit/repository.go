// Package audit is the append-only audit trail inside each tenant partition.
// Entries are written in the same transaction as the mutation they describe
// whenever the mutation is transactional; nothing here mutates or deletes.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

// Entry is the input for an audit write.
type Entry struct {
	ActorID     *uuid.UUID
	ActionType  models.AuditAction
	Description string
	Metadata    map[string]any
	IPAddress   string
	UserAgent   string
}

// Repository handles audit log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTx appends an entry within the caller's transaction, so the entry
// commits or rolls back with the mutation it describes.
func InsertTx(ctx context.Context, tx pgx.Tx, part partition.Partition, e Entry) error {
	q := fmt.Sprintf(`INSERT INTO %s (actor_id, action_type, description, metadata, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''))`, part.Table("audit_logs"))
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := tx.Exec(ctx, q, e.ActorID, string(e.ActionType), e.Description, meta, e.IPAddress, e.UserAgent)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Insert appends an entry outside any caller transaction (best-effort paths
// like rejection auditing).
func (r *Repository) Insert(ctx context.Context, part partition.Partition, e Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := InsertTx(ctx, tx, part, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordViolation writes a cross-tenant rejection entry into the partition
// the request resolved to. Satisfies the pipeline's ViolationRecorder.
func (r *Repository) RecordViolation(ctx context.Context, part partition.Partition, ident *models.Identity, routingKey, ip, userAgent string) error {
	return r.Insert(ctx, part, Entry{
		ActionType:  models.AuditCrossTenantRejected,
		Description: "authenticated identity rejected: tenant mismatch",
		Metadata: map[string]any{
			"identity_id":     ident.ID.String(),
			"identity_tenant": ident.TenantID.String(),
			"routing_key":     routingKey,
		},
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

// List returns entries newest-first with a simple limit/offset window.
func (r *Repository) List(ctx context.Context, part partition.Partition, limit, offset int) ([]models.AuditLog, error) {
	q := fmt.Sprintf(`SELECT id, actor_id, action_type, description, metadata,
		COALESCE(ip_address,''), COALESCE(user_agent,''), created_at
		FROM %s ORDER BY created_at DESC LIMIT $1 OFFSET $2`, part.Table("audit_logs"))
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuditLog
	for rows.Next() {
		var (
			a      models.AuditLog
			action string
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &action, &a.Description, &a.Metadata,
			&a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActionType = models.AuditAction(action)
		list = append(list, a)
	}
	return list, rows.Err()
}
