// Package scheduler promotes due scheduled tasks into live tasks. The engine
// sweeps every active tenant partition, claims each due row with a
// row-level lock so a concurrent run cannot promote it twice, and chains the
// next occurrence for recurring patterns.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/pkg/metrics"
)

// Directory lists the tenants an engine run must visit.
type Directory interface {
	ListActive(ctx context.Context) ([]models.TenantBinding, error)
}

// Stores binds the engine's persistence to one tenant at a time.
type Stores interface {
	ForTenant(binding models.TenantBinding) TenantStore
}

// TenantStore is the engine's view of one tenant partition.
//
// Promote reports claimed=false when the row was already taken by another
// run; that is not an error. A *PromotionError means the row itself is bad
// (missing creator, vanished board) and must be marked failed. Any other
// error is transient and leaves the row pending for the next sweep.
type TenantStore interface {
	DueScheduledTasks(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Promote(ctx context.Context, id uuid.UUID, now time.Time) (claimed bool, err error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (marked bool, err error)
}

// PromotionError is a business failure of a single scheduled task. It
// terminates that row (and its recurrence chain) without touching the rest of
// the batch.
type PromotionError struct {
	Reason string
}

func (e *PromotionError) Error() string { return e.Reason }

// Summary is the outcome of one engine run.
type Summary struct {
	Tenants      int `json:"tenants"`
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	TenantErrors int `json:"tenant_errors"`
}

// Engine drives scheduled-task promotion across all active tenants.
type Engine struct {
	dir     Directory
	stores  Stores
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates an engine. workers bounds how many tenants are swept in
// parallel; values below 1 mean sequential.
func NewEngine(dir Directory, stores Stores, workers int, logger *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{dir: dir, stores: stores, workers: workers, logger: logger, now: time.Now}
}

// RunOnce performs a single sweep. Tenants are processed independently: a
// failing tenant batch is logged and counted, never aborts the run. Within a
// tenant, a failing item is contained to that item.
func (e *Engine) RunOnce(ctx context.Context) (Summary, error) {
	start := e.now()
	metrics.EngineRuns.Inc()

	tenants, err := e.dir.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary = Summary{Tenants: len(tenants)}
	)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, binding := range tenants {
		binding := binding
		g.Go(func() error {
			processed, failed, err := e.runTenant(ctx, binding)
			mu.Lock()
			summary.Processed += processed
			summary.Failed += failed
			if err != nil {
				summary.TenantErrors++
			}
			mu.Unlock()
			if err != nil {
				metrics.TenantRunErrors.Inc()
				e.logger.Error("tenant sweep failed",
					zap.String("tenant", binding.Name),
					zap.String("schema", binding.Schema),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	e.logger.Info("engine run complete",
		zap.Int("tenants", summary.Tenants),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("tenant_errors", summary.TenantErrors),
		zap.Duration("elapsed", e.now().Sub(start)))
	return summary, nil
}

func (e *Engine) runTenant(ctx context.Context, binding models.TenantBinding) (processed, failed int, err error) {
	store := e.stores.ForTenant(binding)
	now := e.now()

	due, err := store.DueScheduledTasks(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range due {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		claimed, err := store.Promote(ctx, id, now)
		if err == nil {
			if claimed {
				processed++
				metrics.TasksPromoted.WithLabelValues(binding.Name).Inc()
			}
			continue
		}

		var perr *PromotionError
		if errors.As(err, &perr) {
			marked, mErr := store.MarkFailed(ctx, id, perr.Reason, now)
			if mErr != nil {
				e.logger.Error("mark failed",
					zap.String("tenant", binding.Name),
					zap.String("scheduled_task_id", id.String()),
					zap.Error(mErr))
				continue
			}
			if !marked {
				// A concurrent run already settled the row; it owns the count.
				continue
			}
			failed++
			metrics.TasksFailed.WithLabelValues(binding.Name).Inc()
			e.logger.Warn("scheduled task failed",
				zap.String("tenant", binding.Name),
				zap.String("scheduled_task_id", id.String()),
				zap.String("reason", perr.Reason))
			continue
		}

		// Transient: leave the row pending, the next sweep retries it.
		e.logger.Error("promote",
			zap.String("tenant", binding.Name),
			zap.String("scheduled_task_id", id.String()),
			zap.Error(err))
	}
	return processed, failed, nil
}
