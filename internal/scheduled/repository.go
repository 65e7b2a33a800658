package scheduled

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

// ErrInvalidAssignee means an assignee does not exist or belongs to another
// tenant. The message does not say which.
var ErrInvalidAssignee = errors.New("invalid assignee")

// Repository handles scheduled task persistence inside a tenant partition.
// The processing_status, failure_reason and processed_at columns are owned by
// the engine; this repository never touches them past their defaults.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a scheduled tasks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, title, description, priority, board_id, created_by, due_date,
	scheduled_time, recurrence, processing_status, failure_reason, created_at, processed_at`

func scanScheduled(row pgx.Row) (*models.ScheduledTask, error) {
	var (
		s                    models.ScheduledTask
		priority, recurrence string
		procStatus           int
	)
	err := row.Scan(&s.ID, &s.Title, &s.Description, &priority, &s.BoardID, &s.CreatedBy,
		&s.DueDate, &s.ScheduledTime, &recurrence, &procStatus, &s.FailureReason,
		&s.CreatedAt, &s.ProcessedAt)
	if err != nil {
		return nil, err
	}
	s.Priority = models.TaskPriority(priority)
	s.Recurrence = models.Recurrence(recurrence)
	s.ProcessingStatus = models.ProcessingStatus(procStatus)
	return &s, nil
}

// Create inserts a pending scheduled task with its assignee set and audit
// entry in one transaction. Assignees must be active identities of the given
// tenant, same as the live tasks path.
func (r *Repository) Create(ctx context.Context, part partition.Partition, tenantID uuid.UUID, s *models.ScheduledTask, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(s.Assignees) > 0 {
		var n int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE id = ANY($1) AND tenant_id = $2 AND is_active = TRUE`,
			s.Assignees, tenantID).Scan(&n); err != nil {
			return err
		}
		if n != len(s.Assignees) {
			return ErrInvalidAssignee
		}
	}

	q := fmt.Sprintf(`INSERT INTO %s (title, description, priority, board_id, created_by, due_date, scheduled_time, recurrence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, processing_status, created_at`, part.Table("scheduled_tasks"))
	var procStatus int
	if err := tx.QueryRow(ctx, q, s.Title, s.Description, string(s.Priority), s.BoardID,
		s.CreatedBy, s.DueDate, s.ScheduledTime, string(s.Recurrence)).
		Scan(&s.ID, &procStatus, &s.CreatedAt); err != nil {
		return fmt.Errorf("insert scheduled task: %w", err)
	}
	s.ProcessingStatus = models.ProcessingStatus(procStatus)

	for _, uid := range s.Assignees {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (scheduled_task_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				part.Table("scheduled_task_assignees")), s.ID, uid); err != nil {
			return err
		}
	}

	origin.ActionType = models.AuditScheduledTaskCreated
	origin.Description = fmt.Sprintf("scheduled task %q created", s.Title)
	origin.Metadata = map[string]any{
		"scheduled_task_id": s.ID.String(),
		"scheduled_time":    s.ScheduledTime,
		"recurrence":        string(s.Recurrence),
		"source":            "api",
	}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a scheduled task with its assignee set.
func (r *Repository) GetByID(ctx context.Context, part partition.Partition, id uuid.UUID) (*models.ScheduledTask, error) {
	q := fmt.Sprintf(`SELECT `+columns+` FROM %s WHERE id = $1`, part.Table("scheduled_tasks"))
	s, err := scanScheduled(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if s.Assignees, err = r.assignees(ctx, part, id); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns scheduled tasks ordered by scheduled time, then creation.
func (r *Repository) List(ctx context.Context, part partition.Partition) ([]models.ScheduledTask, error) {
	q := fmt.Sprintf(`SELECT `+columns+` FROM %s ORDER BY scheduled_time, created_at`, part.Table("scheduled_tasks"))
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ScheduledTask
	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	sets, err := r.assigneeSets(ctx, part, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Assignees = sets[list[i].ID]
		if list[i].Assignees == nil {
			list[i].Assignees = []uuid.UUID{}
		}
	}
	return list, nil
}

// Delete removes a scheduled task. Only pending rows may be deleted; processed
// and failed rows are terminal history.
func (r *Repository) Delete(ctx context.Context, part partition.Partition, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND processing_status = $2`,
			part.Table("scheduled_tasks")), id, int(models.ProcessingPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// assigneeSets fetches the assignee sets for many scheduled tasks in one query.
func (r *Repository) assigneeSets(ctx context.Context, part partition.Partition, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	sets := make(map[uuid.UUID][]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return sets, nil
	}
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT scheduled_task_id, user_id FROM %s WHERE scheduled_task_id = ANY($1) ORDER BY scheduled_task_id, user_id`,
			part.Table("scheduled_task_assignees")), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, userID uuid.UUID
		if err := rows.Scan(&taskID, &userID); err != nil {
			return nil, err
		}
		sets[taskID] = append(sets[taskID], userID)
	}
	return sets, rows.Err()
}

func (r *Repository) assignees(ctx context.Context, part partition.Partition, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT user_id FROM %s WHERE scheduled_task_id = $1 ORDER BY user_id`,
			part.Table("scheduled_task_assignees")), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uuid.UUID{}
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}
