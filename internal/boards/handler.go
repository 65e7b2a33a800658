package boards

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/access"
	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/pkg/response"
)

// CreateRequest is the body for POST /boards.
type CreateRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

// UpdateRequest is the body for PUT /boards/:id.
type UpdateRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

// Handler handles board HTTP endpoints, scoped to the bound partition.
type Handler struct {
	repo *Repository
}

// NewHandler creates a boards handler.
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

// Create handles POST /boards.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ident := middleware.IdentityFromContext(c)
	b := &models.Board{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   ident.ID,
	}
	if err := h.repo.Create(c.Request.Context(), middleware.PartitionFromContext(c), b, origin(c)); err != nil {
		response.Internal(c, "failed to create board")
		return
	}
	response.Created(c, b)
}

// List handles GET /boards.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), middleware.PartitionFromContext(c))
	if err != nil {
		response.Internal(c, "failed to list boards")
		return
	}
	response.OK(c, list)
}

// Get handles GET /boards/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid board id")
		return
	}
	b, err := h.repo.GetByID(c.Request.Context(), middleware.PartitionFromContext(c), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.Internal(c, "failed to load board")
		return
	}
	response.OK(c, b)
}

// Update handles PUT /boards/:id. Creator-only, or admin/owner.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid board id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	part := middleware.PartitionFromContext(c)
	b, err := h.repo.GetByID(c.Request.Context(), part, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.Internal(c, "failed to load board")
		return
	}
	if err := access.Ownership(middleware.IdentityFromContext(c), b.CreatedBy); err != nil {
		response.Forbidden(c, "insufficient permissions")
		return
	}

	b.Name = req.Name
	b.Description = req.Description
	if err := h.repo.Update(c.Request.Context(), part, b, origin(c)); err != nil {
		response.Internal(c, "failed to update board")
		return
	}
	response.OK(c, b)
}

// Delete handles DELETE /boards/:id. Creator-only, or admin/owner.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid board id")
		return
	}
	part := middleware.PartitionFromContext(c)
	b, err := h.repo.GetByID(c.Request.Context(), part, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.Internal(c, "failed to load board")
		return
	}
	if err := access.Ownership(middleware.IdentityFromContext(c), b.CreatedBy); err != nil {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), part, id, origin(c)); err != nil {
		response.Internal(c, "failed to delete board")
		return
	}
	response.NoContent(c)
}
