package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

// PGStores is the production Stores implementation on the shared pool.
type PGStores struct {
	pool    *pgxpool.Pool
	manager *partition.Manager
}

// NewPGStores creates the Postgres-backed store factory.
func NewPGStores(pool *pgxpool.Pool, manager *partition.Manager) *PGStores {
	return &PGStores{pool: pool, manager: manager}
}

// ForTenant binds a store to one tenant partition.
func (s *PGStores) ForTenant(binding models.TenantBinding) TenantStore {
	return &pgTenantStore{
		pool:     s.pool,
		part:     s.manager.Partition(binding.Schema),
		tenantID: binding.TenantID,
	}
}

type pgTenantStore struct {
	pool     *pgxpool.Pool
	part     partition.Partition
	tenantID uuid.UUID
}

// DueScheduledTasks returns ids of pending rows whose time has come, oldest
// schedule first with creation order as the tie-break.
func (s *pgTenantStore) DueScheduledTasks(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id FROM %s
		 WHERE processing_status = $1 AND scheduled_time <= $2
		 ORDER BY scheduled_time ASC, created_at ASC`,
		s.part.Table("scheduled_tasks")), int(models.ProcessingPending), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Promote claims one scheduled task and turns it into a live task inside a
// single transaction. The claim re-checks pending under FOR UPDATE SKIP
// LOCKED, so concurrent sweeps promote each row at most once. Recurring
// patterns get their next pending occurrence inserted in the same
// transaction.
func (s *pgTenantStore) Promote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		st                   models.ScheduledTask
		priority, recurrence string
	)
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, title, description, priority, board_id, created_by, due_date, scheduled_time, recurrence
		 FROM %s
		 WHERE id = $1 AND processing_status = $2
		 FOR UPDATE SKIP LOCKED`,
		s.part.Table("scheduled_tasks")), id, int(models.ProcessingPending)).
		Scan(&st.ID, &st.Title, &st.Description, &priority, &st.BoardID, &st.CreatedBy,
			&st.DueDate, &st.ScheduledTime, &recurrence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Already claimed by a concurrent run, or no longer pending.
			return false, nil
		}
		return false, err
	}
	st.Priority = models.TaskPriority(priority)
	st.Recurrence = models.Recurrence(recurrence)

	var creatorOK bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE)`,
		st.CreatedBy, s.tenantID).Scan(&creatorOK)
	if err != nil {
		return false, err
	}
	if !creatorOK {
		return false, &PromotionError{Reason: "creator no longer exists or is inactive"}
	}

	boardID, err := s.resolveBoard(ctx, tx, &st)
	if err != nil {
		return false, err
	}

	var taskID uuid.UUID
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (title, description, status, priority, board_id, created_by, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		s.part.Table("tasks")),
		st.Title, st.Description, string(models.TaskPending), string(st.Priority),
		boardID, st.CreatedBy, st.DueDate).Scan(&taskID)
	if err != nil {
		return false, fmt.Errorf("insert task: %w", err)
	}

	// Carry over assignees that are still active identities of this tenant;
	// departed ones are silently dropped.
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (task_id, user_id)
		 SELECT $1, sa.user_id FROM %s sa
		 JOIN users u ON u.id = sa.user_id AND u.tenant_id = $2 AND u.is_active = TRUE
		 WHERE sa.scheduled_task_id = $3`,
		s.part.Table("task_assignees"), s.part.Table("scheduled_task_assignees")),
		taskID, s.tenantID, st.ID)
	if err != nil {
		return false, fmt.Errorf("copy assignees: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET processing_status = $2, processed_at = $3 WHERE id = $1`,
		s.part.Table("scheduled_tasks")), st.ID, int(models.ProcessingProcessed), now)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}

	entry := audit.Entry{
		ActionType:  models.AuditScheduledTaskCreated,
		Description: fmt.Sprintf("scheduled task %q promoted", st.Title),
		Metadata: map[string]any{
			"scheduled_task_id": st.ID.String(),
			"task_id":           taskID.String(),
			"source":            "engine",
		},
	}
	if err := audit.InsertTx(ctx, tx, s.part, entry); err != nil {
		return false, err
	}

	if next := NextOccurrence(st.ScheduledTime, st.Recurrence); next != nil {
		if err := s.insertNextOccurrence(ctx, tx, &st, *next); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// resolveBoard picks the board for the promoted task: the configured board if
// it still exists, otherwise the creator's oldest board, otherwise a fresh
// "Default Board" owned by the creator.
func (s *pgTenantStore) resolveBoard(ctx context.Context, tx pgx.Tx, st *models.ScheduledTask) (uuid.UUID, error) {
	boards := s.part.Table("boards")

	if st.BoardID != nil {
		var exists bool
		err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, boards), *st.BoardID).
			Scan(&exists)
		if err != nil {
			return uuid.Nil, err
		}
		if exists {
			return *st.BoardID, nil
		}
	}

	var boardID uuid.UUID
	err := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE created_by = $1 ORDER BY created_at ASC LIMIT 1`, boards),
		st.CreatedBy).Scan(&boardID)
	if err == nil {
		return boardID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	err = tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, description, created_by) VALUES ($1, $2, $3) RETURNING id`, boards),
		"Default Board", "Created automatically for scheduled tasks", st.CreatedBy).Scan(&boardID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create default board: %w", err)
	}
	return boardID, nil
}

// insertNextOccurrence chains a recurring pattern: a fresh pending row at the
// next scheduled time, with the same assignee set.
func (s *pgTenantStore) insertNextOccurrence(ctx context.Context, tx pgx.Tx, st *models.ScheduledTask, next time.Time) error {
	var nextID uuid.UUID
	err := tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (title, description, priority, board_id, created_by, due_date, scheduled_time, recurrence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		s.part.Table("scheduled_tasks")),
		st.Title, st.Description, string(st.Priority), st.BoardID, st.CreatedBy,
		st.DueDate, next, string(st.Recurrence)).Scan(&nextID)
	if err != nil {
		return fmt.Errorf("insert next occurrence: %w", err)
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (scheduled_task_id, user_id)
		 SELECT $1, user_id FROM %s WHERE scheduled_task_id = $2`,
		s.part.Table("scheduled_task_assignees"), s.part.Table("scheduled_task_assignees")),
		nextID, st.ID)
	if err != nil {
		return fmt.Errorf("copy occurrence assignees: %w", err)
	}
	return nil
}

// MarkFailed moves a still-pending row to the failed terminal state and
// records the reason. A recurring pattern ends here: no next occurrence is
// created for a failed row. Returns false without error when another run
// already settled the row, so only one run counts the failure.
func (s *pgTenantStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET processing_status = $2, failure_reason = $3, processed_at = $4
		 WHERE id = $1 AND processing_status = $5`,
		s.part.Table("scheduled_tasks")),
		id, int(models.ProcessingFailed), reason, now, int(models.ProcessingPending))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	entry := audit.Entry{
		ActionType:  models.AuditScheduledTaskFailed,
		Description: "scheduled task promotion failed",
		Metadata: map[string]any{
			"scheduled_task_id": id.String(),
			"reason":            reason,
			"source":            "engine",
		},
	}
	if err := audit.InsertTx(ctx, tx, s.part, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
