package tenants

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/backend/internal/identity"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/response"
	"github.com/taskhive/backend/pkg/utils"
)

// SignupRequest is the body for POST /signup: a new organization with its
// primary routing domain and owner account.
type SignupRequest struct {
	Name          string     `json:"name" binding:"required,max=120"`
	Domain        string     `json:"domain" binding:"required,max=253"`
	PlanID        *uuid.UUID `json:"plan_id"`
	OwnerEmail    string     `json:"owner_email" binding:"required,email"`
	OwnerPassword string     `json:"owner_password" binding:"required,min=8"`
	OwnerFullName string     `json:"owner_full_name" binding:"required,max=120"`
}

// AddDomainRequest is the body for POST /tenant/domains.
type AddDomainRequest struct {
	Domain string `json:"domain" binding:"required,max=253"`
}

// Handler handles tenant lifecycle HTTP endpoints.
type Handler struct {
	repo       *Repository
	directory  *Directory
	manager    *partition.Manager
	identities *identity.Repository
	logger     *zap.Logger
}

// NewHandler creates a tenants handler.
func NewHandler(repo *Repository, directory *Directory, manager *partition.Manager, identities *identity.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, directory: directory, manager: manager, identities: identities, logger: logger}
}

// Signup handles POST /signup. It creates the tenant, its primary domain and
// subscription, provisions the partition, then creates the owner identity.
// The endpoint is public and not tenant-resolved: there is no tenant yet.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	t, err := h.repo.Create(ctx, CreateParams{Name: req.Name, Domain: req.Domain, PlanID: req.PlanID})
	if err != nil {
		h.logger.Error("tenant signup failed", zap.String("domain", req.Domain), zap.Error(err))
		response.BadRequest(c, "could not create organization")
		return
	}
	if _, err := h.manager.Create(ctx, t.ID); err != nil {
		h.logger.Error("partition provisioning failed",
			zap.String("tenant_id", t.ID.String()), zap.Error(err))
		response.Internal(c, "could not provision organization")
		return
	}

	hash, err := utils.HashPassword(req.OwnerPassword)
	if err != nil {
		response.Internal(c, "could not create owner account")
		return
	}
	owner, err := h.identities.Create(ctx, identity.CreateParams{
		Email:        req.OwnerEmail,
		PasswordHash: hash,
		FullName:     req.OwnerFullName,
		TenantID:     t.ID,
		IsOwner:      true,
		IsAdmin:      true,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			response.Conflict(c, "email already registered")
			return
		}
		response.Internal(c, "could not create owner account")
		return
	}

	h.logger.Info("tenant created",
		zap.String("tenant_id", t.ID.String()),
		zap.String("name", t.Name),
		zap.String("domain", req.Domain))
	response.Created(c, gin.H{"tenant": t, "owner": owner.ToPublic()})
}

// ListPlans handles GET /plans (public reference data).
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.repo.ListPlans(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list plans")
		return
	}
	response.OK(c, plans)
}

// AddDomain handles POST /tenant/domains. Owner-only; the new routing key
// belongs to the tenant resolved for this request.
func (h *Handler) AddDomain(c *gin.Context) {
	var req AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	binding := middleware.TenantFromContext(c)
	if err := h.repo.AddDomain(c.Request.Context(), binding.TenantID, req.Domain); err != nil {
		response.BadRequest(c, "could not add domain")
		return
	}
	h.directory.Invalidate(c.Request.Context(), []string{req.Domain})
	response.Created(c, gin.H{"domain": req.Domain})
}

// Deactivate handles POST /tenant/deactivate. Owner-only kill-switch: the
// tenant stops resolving once its cached entries expire or are invalidated.
func (h *Handler) Deactivate(c *gin.Context) {
	binding := middleware.TenantFromContext(c)
	ctx := c.Request.Context()

	if err := h.repo.Deactivate(ctx, binding.TenantID); err != nil {
		response.Internal(c, "could not deactivate organization")
		return
	}
	if domains, err := h.repo.Domains(ctx, binding.TenantID); err == nil {
		h.directory.Invalidate(ctx, domains)
	}
	h.logger.Info("tenant deactivated", zap.String("tenant_id", binding.TenantID.String()))
	response.NoContent(c)
}
