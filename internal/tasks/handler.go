package tasks

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/access"
	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/pkg/response"
)

// CreateRequest is the body for POST /tasks.
type CreateRequest struct {
	Title       string      `json:"title" binding:"required,max=255"`
	Description string      `json:"description"`
	Priority    string      `json:"priority"`
	BoardID     uuid.UUID   `json:"board_id" binding:"required"`
	Assignees   []uuid.UUID `json:"assignees"`
	DueDate     *time.Time  `json:"due_date"`
}

// UpdateRequest is the body for PUT /tasks/:id.
type UpdateRequest struct {
	Title       string      `json:"title" binding:"required,max=255"`
	Description string      `json:"description"`
	Status      string      `json:"status" binding:"required"`
	Priority    string      `json:"priority" binding:"required"`
	Assignees   []uuid.UUID `json:"assignees"`
	DueDate     *time.Time  `json:"due_date"`
}

// AssignRequest is the body for POST /tasks/:id/assign.
type AssignRequest struct {
	Assignees []uuid.UUID `json:"assignees" binding:"required"`
}

// Handler handles task HTTP endpoints, scoped to the bound partition.
type Handler struct {
	repo *Repository
}

// NewHandler creates a tasks handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func origin(c *gin.Context) audit.Entry {
	ident := middleware.IdentityFromContext(c)
	id := ident.ID
	return audit.Entry{
		ActorID:   &id,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// Create handles POST /tasks.
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

	ident := middleware.IdentityFromContext(c)
	binding := middleware.TenantFromContext(c)
	t := &models.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskPending,
		Priority:    priority,
		BoardID:     req.BoardID,
		CreatedBy:   ident.ID,
		Assignees:   req.Assignees,
		DueDate:     req.DueDate,
	}
	err := h.repo.Create(c.Request.Context(), middleware.PartitionFromContext(c), binding.TenantID, t, origin(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidBoard):
			response.BadRequest(c, "invalid board")
		case errors.Is(err, ErrInvalidAssignee):
			response.BadRequest(c, "invalid assignee")
		default:
			response.Internal(c, "failed to create task")
		}
		return
	}
	response.Created(c, t)
}

// List handles GET /tasks with optional board_id/status/priority filters.
func (h *Handler) List(c *gin.Context) {
	var f Filter
	if v := c.Query("board_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid board_id")
			return
		}
		f.BoardID = &id
	}
	if v := c.Query("status"); v != "" {
		if !models.ValidTaskStatus(models.TaskStatus(v)) {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = models.TaskStatus(v)
	}
	if v := c.Query("priority"); v != "" {
		if !models.ValidTaskPriority(models.TaskPriority(v)) {
			response.BadRequest(c, "invalid priority")
			return
		}
		f.Priority = models.TaskPriority(v)
	}

	list, err := h.repo.List(c.Request.Context(), middleware.PartitionFromContext(c), f)
	if err != nil {
		response.Internal(c, "failed to list tasks")
		return
	}
	response.OK(c, list)
}

// Get handles GET /tasks/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}
	t, err := h.repo.GetByID(c.Request.Context(), middleware.PartitionFromContext(c), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "task not found")
			return
		}
		response.Internal(c, "failed to load task")
		return
	}
	response.OK(c, t)
}

// Update handles PUT /tasks/:id. Creator-only, or admin/owner.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.TaskStatus(req.Status)
	priority := models.TaskPriority(req.Priority)
	if !models.ValidTaskStatus(status) {
		response.BadRequest(c, "invalid status")
		return
	}
	if !models.ValidTaskPriority(priority) {
		response.BadRequest(c, "invalid priority")
		return
	}

	part := middleware.PartitionFromContext(c)
	t, err := h.repo.GetByID(c.Request.Context(), part, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "task not found")
			return
		}
		response.Internal(c, "failed to load task")
		return
	}
	if err := access.Ownership(middleware.IdentityFromContext(c), t.CreatedBy); err != nil {
		response.Forbidden(c, "insufficient permissions")
		return
	}

	binding := middleware.TenantFromContext(c)
	t.Title = req.Title
	t.Description = req.Description
	t.Status = status
	t.Priority = priority
	t.Assignees = req.Assignees
	t.DueDate = req.DueDate
	if err := h.repo.Update(c.Request.Context(), part, binding.TenantID, t, origin(c)); err != nil {
		if errors.Is(err, ErrInvalidAssignee) {
			response.BadRequest(c, "invalid assignee")
			return
		}
		response.Internal(c, "failed to update task")
		return
	}
	response.OK(c, t)
}

// Assign handles POST /tasks/:id/assign.
func (h *Handler) Assign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	binding := middleware.TenantFromContext(c)
	err = h.repo.Assign(c.Request.Context(), middleware.PartitionFromContext(c), binding.TenantID, id, req.Assignees, origin(c))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			response.NotFound(c, "task not found")
		case errors.Is(err, ErrInvalidAssignee):
			response.BadRequest(c, "invalid assignee")
		default:
			response.Internal(c, "failed to assign task")
		}
		return
	}
	response.NoContent(c)
}

// Delete handles DELETE /tasks/:id. Creator-only, or admin/owner.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}
	part := middleware.PartitionFromContext(c)
	t, err := h.repo.GetByID(c.Request.Context(), part, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "task not found")
			return
		}
		response.Internal(c, "failed to load task")
		return
	}
	if err := access.Ownership(middleware.IdentityFromContext(c), t.CreatedBy); err != nil {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), part, id, origin(c)); err != nil {
		response.Internal(c, "failed to delete task")
		return
	}
	response.NoContent(c)
}
