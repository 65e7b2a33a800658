package identity

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/pkg/response"
	"github.com/taskhive/backend/pkg/utils"
)

// CapacityChecker reports a tenant's member headcount against its plan limit.
// Implemented by the tenants repository.
type CapacityChecker interface {
	UserCapacity(ctx context.Context, tenantID uuid.UUID) (used, max int, err error)
}

// Store is the persistence surface the handler needs. Implemented by
// Repository.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	Create(ctx context.Context, p CreateParams) (*models.Identity, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.IdentityPublic, error)
	SetRestricted(ctx context.Context, id uuid.UUID, restricted bool) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// dummyHash is a throwaway bcrypt hash compared against when the email is
// unknown, so that path costs the same as a real password check.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string                `json:"token"`
	User  models.IdentityPublic `json:"user"`
}

// CreateMemberRequest is the body for POST /users (admin adds a member).
type CreateMemberRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// Handler handles identity HTTP endpoints.
type Handler struct {
	repo     Store
	jwt      *JWTService
	capacity CapacityChecker
	logger   *zap.Logger
}

// NewHandler creates an identity handler.
func NewHandler(repo Store, jwt *JWTService, capacity CapacityChecker, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, capacity: capacity, logger: logger}
}

// Login handles POST /auth/login. The route is tenant-resolved: a valid
// password presented at another tenant's domain gets the same generic
// rejection as a wrong password.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	binding := middleware.TenantFromContext(c)

	ident, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// An unknown email costs a full compare, same as a wrong password.
		utils.CheckPassword(req.Password, dummyHash)
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, ident.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if ident.TenantID != binding.TenantID {
		// Same message as a bad password; existence elsewhere must not leak.
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !ident.IsActive {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(ident.ID, ident.Email, ident.TenantID)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: ident.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	ident := middleware.IdentityFromContext(c)
	response.OK(c, ident.ToPublic())
}

// List handles GET /users (admin/owner only). Returns the tenant's members.
func (h *Handler) List(c *gin.Context) {
	binding := middleware.TenantFromContext(c)
	list, err := h.repo.ListByTenant(c.Request.Context(), binding.TenantID)
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// CreateMember handles POST /users (admin/owner only). New identities are
// bound to the request's verified tenant; the binding is immutable afterwards.
func (h *Handler) CreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	binding := middleware.TenantFromContext(c)

	if h.capacity != nil {
		used, max, err := h.capacity.UserCapacity(c.Request.Context(), binding.TenantID)
		if err != nil {
			response.Internal(c, "failed to create user")
			return
		}
		if used >= max {
			response.Forbidden(c, "user limit reached for this plan")
			return
		}
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	ident, err := h.repo.Create(c.Request.Context(), CreateParams{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		TenantID:     binding.TenantID,
		IsAdmin:      req.IsAdmin,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, "email already registered")
			return
		}
		h.logger.Error("create member", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	response.Created(c, ident.ToPublic())
}

// RestrictRequest is the body for PATCH /users/:id/restriction.
type RestrictRequest struct {
	Restricted *bool `json:"restricted" binding:"required"`
}

// member loads the target identity and confirms it belongs to the request's
// tenant. Another tenant's identity is reported as absent.
func (h *Handler) member(c *gin.Context) (*models.Identity, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return nil, false
	}
	target, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "user not found")
		return nil, false
	}
	binding := middleware.TenantFromContext(c)
	if target.TenantID != binding.TenantID {
		response.NotFound(c, "user not found")
		return nil, false
	}
	return target, true
}

// SetRestricted handles PATCH /users/:id/restriction (admin/owner only).
// Restricted members keep read access but lose all mutating capability.
func (h *Handler) SetRestricted(c *gin.Context) {
	var req RestrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, ok := h.member(c)
	if !ok {
		return
	}
	if target.IsOwner {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	if err := h.repo.SetRestricted(c.Request.Context(), target.ID, *req.Restricted); err != nil {
		response.Internal(c, "failed to update user")
		return
	}
	response.NoContent(c)
}

// DeactivateMember handles DELETE /users/:id (admin/owner only). The identity
// row is kept; its credential stops authenticating.
func (h *Handler) DeactivateMember(c *gin.Context) {
	target, ok := h.member(c)
	if !ok {
		return
	}
	if target.IsOwner {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	actor := middleware.IdentityFromContext(c)
	if actor.ID == target.ID {
		response.BadRequest(c, "cannot deactivate yourself")
		return
	}
	if err := h.repo.Deactivate(c.Request.Context(), target.ID); err != nil {
		response.Internal(c, "failed to deactivate user")
		return
	}
	response.NoContent(c)
}
