package audit

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/pkg/response"
)

// Handler handles audit log HTTP endpoints. Routes are mounted admin-only.
type Handler struct {
	repo *Repository
}

// NewHandler creates an audit handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /audit-logs.
func (h *Handler) List(c *gin.Context) {
	part := middleware.PartitionFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.repo.List(c.Request.Context(), part, limit, offset)
	if err != nil {
		response.Internal(c, "failed to list audit logs")
		return
	}
	response.OK(c, list)
}
