package scheduled

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/access"
	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/response"
)

// CreateRequest is the body for POST /scheduled-tasks.
type CreateRequest struct {
	Title         string      `json:"title" binding:"required,max=255"`
	Description   string      `json:"description"`
	Priority      string      `json:"priority"`
	BoardID       *uuid.UUID  `json:"board_id"`
	Assignees     []uuid.UUID `json:"assignees"`
	DueDate       *time.Time  `json:"due_date"`
	ScheduledTime time.Time   `json:"scheduled_time" binding:"required"`
	Recurrence    string      `json:"recurrence"`
}

// Store is the persistence surface the handler needs. Implemented by
// Repository.
type Store interface {
	Create(ctx context.Context, part partition.Partition, tenantID uuid.UUID, s *models.ScheduledTask, origin audit.Entry) error
	GetByID(ctx context.Context, part partition.Partition, id uuid.UUID) (*models.ScheduledTask, error)
	List(ctx context.Context, part partition.Partition) ([]models.ScheduledTask, error)
	Delete(ctx context.Context, part partition.Partition, id uuid.UUID) error
}

// Handler handles scheduled task HTTP endpoints, scoped to the bound partition.
type Handler struct {
	repo Store
}

// NewHandler creates a scheduled tasks handler.
func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /scheduled-tasks.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	priority := models.TaskPriority(req.Priority)
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidTaskPriority(priority) {
		response.BadRequest(c, "invalid priority")
		return
	}
	recurrence := models.Recurrence(req.Recurrence)
	if recurrence == "" {
		recurrence = models.RecurrenceOnce
	}
	if !models.ValidRecurrence(recurrence) {
		response.BadRequest(c, "invalid recurrence")
		return
	}

	ident := middleware.IdentityFromContext(c)
	actorID := ident.ID
	s := &models.ScheduledTask{
		Title:         req.Title,
		Description:   req.Description,
		Priority:      priority,
		BoardID:       req.BoardID,
		CreatedBy:     ident.ID,
		Assignees:     req.Assignees,
		DueDate:       req.DueDate,
		ScheduledTime: req.ScheduledTime,
		Recurrence:    recurrence,
	}
	binding := middleware.TenantFromContext(c)
	err := h.repo.Create(c.Request.Context(), middleware.PartitionFromContext(c), binding.TenantID, s, audit.Entry{
		ActorID:   &actorID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAssignee) {
			response.BadRequest(c, "invalid assignee")
			return
		}
		response.Internal(c, "failed to create scheduled task")
		return
	}
	response.Created(c, s)
}

// List handles GET /scheduled-tasks.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), middleware.PartitionFromContext(c))
	if err != nil {
		response.Internal(c, "failed to list scheduled tasks")
		return
	}
	response.OK(c, list)
}

// Get handles GET /scheduled-tasks/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid scheduled task id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), middleware.PartitionFromContext(c), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "scheduled task not found")
			return
		}
		response.Internal(c, "failed to load scheduled task")
		return
	}
	response.OK(c, s)
}

// Delete handles DELETE /scheduled-tasks/:id. Creator-only, or admin/owner;
// only pending rows can be deleted.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid scheduled task id")
		return
	}
	part := middleware.PartitionFromContext(c)
	s, err := h.repo.GetByID(c.Request.Context(), part, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "scheduled task not found")
			return
		}
		response.Internal(c, "failed to load scheduled task")
		return
	}
	if err := access.Ownership(middleware.IdentityFromContext(c), s.CreatedBy); err != nil {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), part, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "scheduled task not found")
			return
		}
		response.Internal(c, "failed to delete scheduled task")
		return
	}
	response.NoContent(c)
}
