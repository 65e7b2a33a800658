package tasks

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

// ErrInvalidAssignee means an assignee does not exist or belongs to another
// tenant. The message does not say which.
var ErrInvalidAssignee = errors.New("invalid assignee")

// ErrInvalidBoard means the referenced board is absent in the bound partition.
var ErrInvalidBoard = errors.New("invalid board")

// Repository handles task persistence inside a tenant partition.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tasks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, title, description, status, priority, board_id, created_by,
	due_date, completed_at, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		t                models.Task
		status, priority string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.BoardID,
		&t.CreatedBy, &t.DueDate, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Priority = models.TaskPriority(priority)
	return &t, nil
}

// assigneesInTenant verifies every assignee is an identity of the given tenant.
// The shared users table is always queried with its tenant filter.
func assigneesInTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ANY($1) AND tenant_id = $2 AND is_active = TRUE`,
		ids, tenantID).Scan(&n)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return ErrInvalidAssignee
	}
	return nil
}

func replaceAssignees(ctx context.Context, tx pgx.Tx, part partition.Partition, taskID uuid.UUID, ids []uuid.UUID) error {
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, part.Table("task_assignees")), taskID); err != nil {
		return err
	}
	for _, uid := range ids {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (task_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				part.Table("task_assignees")), taskID, uid); err != nil {
			return err
		}
	}
	return nil
}

// loadAssigneeSets fetches the assignee sets for many tasks in one query.
func loadAssigneeSets(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, part partition.Partition, taskIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	sets := make(map[uuid.UUID][]uuid.UUID, len(taskIDs))
	if len(taskIDs) == 0 {
		return sets, nil
	}
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT task_id, user_id FROM %s WHERE task_id = ANY($1) ORDER BY task_id, user_id`,
			part.Table("task_assignees")), taskIDs)
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

func loadAssignees(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, part partition.Partition, taskID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT user_id FROM %s WHERE task_id = $1 ORDER BY user_id`, part.Table("task_assignees")), taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Create inserts a task, its assignee set and the audit entry in one
// transaction. Board and assignees must belong to the same partition/tenant.
func (r *Repository) Create(ctx context.Context, part partition.Partition, tenantID uuid.UUID, t *models.Task, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, part.Table("boards")),
		t.BoardID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrInvalidBoard
	}
	if err := assigneesInTenant(ctx, tx, tenantID, t.Assignees); err != nil {
		return err
	}

	q := fmt.Sprintf(`INSERT INTO %s (title, description, status, priority, board_id, created_by, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`, part.Table("tasks"))
	if err := tx.QueryRow(ctx, q, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.BoardID, t.CreatedBy, t.DueDate).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if err := replaceAssignees(ctx, tx, part, t.ID, t.Assignees); err != nil {
		return err
	}

	origin.ActionType = models.AuditTaskCreated
	origin.Description = fmt.Sprintf("task %q created", t.Title)
	origin.Metadata = map[string]any{
		"task_id":  t.ID.String(),
		"board_id": t.BoardID.String(),
		"title":    t.Title,
	}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a task with its assignee set.
func (r *Repository) GetByID(ctx context.Context, part partition.Partition, id uuid.UUID) (*models.Task, error) {
	q := fmt.Sprintf(`SELECT `+taskColumns+` FROM %s WHERE id = $1`, part.Table("tasks"))
	t, err := scanTask(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if t.Assignees, err = loadAssignees(ctx, r.pool, part, id); err != nil {
		return nil, err
	}
	return t, nil
}

// Filter narrows List results.
type Filter struct {
	BoardID  *uuid.UUID
	Status   models.TaskStatus
	Priority models.TaskPriority
}

// List returns tasks in the bound partition, newest first.
func (r *Repository) List(ctx context.Context, part partition.Partition, f Filter) ([]models.Task, error) {
	q := fmt.Sprintf(`SELECT `+taskColumns+` FROM %s WHERE 1=1`, part.Table("tasks"))
	args := []any{}
	if f.BoardID != nil {
		args = append(args, *f.BoardID)
		q += fmt.Sprintf(" AND board_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		q += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	sets, err := loadAssigneeSets(ctx, r.pool, part, ids)
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

// Update rewrites a task's mutable fields and audits the change. Completing a
// task stamps completed_at; leaving completed clears it.
func (r *Repository) Update(ctx context.Context, part partition.Partition, tenantID uuid.UUID, t *models.Task, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := assigneesInTenant(ctx, tx, tenantID, t.Assignees); err != nil {
		return err
	}

	if t.Status == models.TaskCompleted && t.CompletedAt == nil {
		now := time.Now()
		t.CompletedAt = &now
	} else if t.Status != models.TaskCompleted {
		t.CompletedAt = nil
	}

	q := fmt.Sprintf(`UPDATE %s SET title = $2, description = $3, status = $4, priority = $5,
		due_date = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, part.Table("tasks"))
	if err := tx.QueryRow(ctx, q, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueDate, t.CompletedAt).Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	if err := replaceAssignees(ctx, tx, part, t.ID, t.Assignees); err != nil {
		return err
	}

	if t.Status == models.TaskCompleted {
		origin.ActionType = models.AuditTaskCompleted
		origin.Description = fmt.Sprintf("task %q completed", t.Title)
	} else {
		origin.ActionType = models.AuditTaskUpdated
		origin.Description = fmt.Sprintf("task %q updated", t.Title)
	}
	origin.Metadata = map[string]any{"task_id": t.ID.String(), "status": string(t.Status)}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Assign replaces the assignee set and audits the assignment.
func (r *Repository) Assign(ctx context.Context, part partition.Partition, tenantID uuid.UUID, taskID uuid.UUID, assignees []uuid.UUID, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, part.Table("tasks")),
		taskID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	if err := assigneesInTenant(ctx, tx, tenantID, assignees); err != nil {
		return err
	}
	if err := replaceAssignees(ctx, tx, part, taskID, assignees); err != nil {
		return err
	}

	ids := make([]string, len(assignees))
	for i, a := range assignees {
		ids[i] = a.String()
	}
	origin.ActionType = models.AuditTaskAssigned
	origin.Description = "task assignees updated"
	origin.Metadata = map[string]any{"task_id": taskID.String(), "assignees": ids}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes a task and audits the deletion.
func (r *Repository) Delete(ctx context.Context, part partition.Partition, id uuid.UUID, origin audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, part.Table("tasks")), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	origin.ActionType = models.AuditTaskDeleted
	origin.Description = "task deleted"
	origin.Metadata = map[string]any{"task_id": id.String()}
	if err := audit.InsertTx(ctx, tx, part, origin); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
