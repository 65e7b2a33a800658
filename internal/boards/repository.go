package boards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

// Repository handles board persistence inside a tenant partition. Every
// method takes the partition binding explicitly; there is no ambient schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a boards repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a board and its audit entry in one transaction.
func (r *Repository) Create(ctx context.Context, part partition.Partition, b *models.Board, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	q := fmt.Sprintf(`INSERT INTO %s (name, description, created_by)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`, part.Table("boards"))
	if err := tx.QueryRow(ctx, q, b.Name, b.Description, b.CreatedBy).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("insert board: %w", err)
	}

	origin.ActionType = models.AuditBoardCreated
	origin.Description = fmt.Sprintf("board %q created", b.Name)
	origin.Metadata = map[string]any{"board_id": b.ID.String(), "name": b.Name}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a board by ID within the bound partition.
func (r *Repository) GetByID(ctx context.Context, part partition.Partition, id uuid.UUID) (*models.Board, error) {
	q := fmt.Sprintf(`SELECT id, name, description, created_by, created_at, updated_at
		FROM %s WHERE id = $1`, part.Table("boards"))
	var b models.Board
	err := r.pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.Name, &b.Description, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// List returns all boards in the bound partition.
func (r *Repository) List(ctx context.Context, part partition.Partition) ([]models.Board, error) {
	q := fmt.Sprintf(`SELECT id, name, description, created_by, created_at, updated_at
		FROM %s ORDER BY name`, part.Table("boards"))
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Board
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// Update renames a board and writes the audit entry in the same transaction.
func (r *Repository) Update(ctx context.Context, part partition.Partition, b *models.Board, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	q := fmt.Sprintf(`UPDATE %s SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, part.Table("boards"))
	if err := tx.QueryRow(ctx, q, b.ID, b.Name, b.Description).Scan(&b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("update board: %w", err)
	}

	origin.ActionType = models.AuditBoardUpdated
	origin.Description = fmt.Sprintf("board %q updated", b.Name)
	origin.Metadata = map[string]any{"board_id": b.ID.String()}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes a board (cascades to its tasks) and audits the deletion.
func (r *Repository) Delete(ctx context.Context, part partition.Partition, id uuid.UUID, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, part.Table("boards")), id)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	origin.ActionType = models.AuditBoardDeleted
	origin.Description = "board deleted"
	origin.Metadata = map[string]any{"board_id": id.String()}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
