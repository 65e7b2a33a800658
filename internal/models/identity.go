package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an identity's role within its tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Identity is a user account in the shared store. Each identity belongs to
// exactly one tenant for its entire lifetime; the ID is globally unique so a
// credential can never be reinterpreted against another tenant's partition.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	TenantID     uuid.UUID `json:"tenant_id"`
	IsOwner      bool      `json:"is_owner"`
	IsAdmin      bool      `json:"is_admin"`
	IsRestricted bool      `json:"is_restricted"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role returns the identity's effective role.
func (i *Identity) Role() Role {
	switch {
	case i.IsOwner:
		return RoleOwner
	case i.IsAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}

// IdentityPublic is Identity without sensitive fields for API responses.
type IdentityPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts Identity to IdentityPublic.
func (i *Identity) ToPublic() IdentityPublic {
	return IdentityPublic{
		ID:        i.ID,
		Email:     i.Email,
		FullName:  i.FullName,
		Role:      i.Role(),
		IsActive:  i.IsActive,
		CreatedAt: i.CreatedAt,
	}
}
