// Package access consolidates the fixed capability checks every operation
// composes from: tenant match, role, and ownership. Handlers declare checks
// explicitly instead of scattering ad hoc logic.
package access

import (
	"errors"

	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/models"
)

var (
	// ErrCrossTenant means an authenticated identity was presented against a
	// routing key belonging to a different tenant. Security-relevant: logged
	// with elevated severity by the pipeline, never silently corrected.
	ErrCrossTenant = errors.New("identity does not belong to this tenant")
	// ErrForbidden covers role and ownership failures.
	ErrForbidden = errors.New("forbidden")
)

// TenantMatch verifies the identity's immutable tenant binding equals the
// tenant resolved from the routing key. Mandatory on every authenticated
// request; this single check defeats cross-tenant token replay.
func TenantMatch(ident *models.Identity, boundTenant uuid.UUID) error {
	if ident.TenantID != boundTenant {
		return ErrCrossTenant
	}
	return nil
}

// Role verifies the identity holds at least the required role.
// owner > admin > member. Restricted identities hold no mutating capability
// regardless of role; see Writable.
func Role(ident *models.Identity, required models.Role) error {
	if rank(ident.Role()) < rank(required) {
		return ErrForbidden
	}
	return nil
}

// Writable verifies the identity may perform mutating operations at all.
func Writable(ident *models.Identity) error {
	if ident.IsRestricted {
		return ErrForbidden
	}
	return nil
}

// Ownership verifies the identity created the resource, or is admin/owner.
func Ownership(ident *models.Identity, creator uuid.UUID) error {
	if ident.ID == creator {
		return nil
	}
	if ident.IsOwner || ident.IsAdmin {
		return nil
	}
	return ErrForbidden
}

func rank(r models.Role) int {
	switch r {
	case models.RoleOwner:
		return 3
	case models.RoleAdmin:
		return 2
	case models.RoleMember:
		return 1
	}
	return 0
}
