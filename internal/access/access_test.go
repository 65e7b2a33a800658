package access

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/models"
)

func ident(tenantID uuid.UUID, owner, admin, restricted bool) *models.Identity {
	return &models.Identity{
		ID:           uuid.New(),
		TenantID:     tenantID,
		IsOwner:      owner,
		IsAdmin:      admin,
		IsRestricted: restricted,
		IsActive:     true,
	}
}

func TestTenantMatch(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	if err := TenantMatch(ident(tenantA, false, false, false), tenantA); err != nil {
		t.Fatalf("same tenant: unexpected error %v", err)
	}
	err := TenantMatch(ident(tenantA, false, false, false), tenantB)
	if !errors.Is(err, ErrCrossTenant) {
		t.Fatalf("cross tenant: got %v, want ErrCrossTenant", err)
	}
}

func TestRoleHierarchy(t *testing.T) {
	tenant := uuid.New()
	owner := ident(tenant, true, false, false)
	admin := ident(tenant, false, true, false)
	member := ident(tenant, false, false, false)

	cases := []struct {
		name     string
		ident    *models.Identity
		required models.Role
		allowed  bool
	}{
		{"owner meets owner", owner, models.RoleOwner, true},
		{"owner meets admin", owner, models.RoleAdmin, true},
		{"admin meets admin", admin, models.RoleAdmin, true},
		{"admin denied owner", admin, models.RoleOwner, false},
		{"member meets member", member, models.RoleMember, true},
		{"member denied admin", member, models.RoleAdmin, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Role(tc.ident, tc.required)
			if tc.allowed && err != nil {
				t.Fatalf("got %v, want nil", err)
			}
			if !tc.allowed && !errors.Is(err, ErrForbidden) {
				t.Fatalf("got %v, want ErrForbidden", err)
			}
		})
	}
}

func TestWritableRejectsRestricted(t *testing.T) {
	tenant := uuid.New()
	// Restriction overrides role: even an owner loses write capability.
	restrictedOwner := ident(tenant, true, false, true)
	if err := Writable(restrictedOwner); !errors.Is(err, ErrForbidden) {
		t.Fatalf("restricted owner: got %v, want ErrForbidden", err)
	}
	if err := Writable(ident(tenant, false, false, false)); err != nil {
		t.Fatalf("unrestricted member: unexpected error %v", err)
	}
}

func TestOwnership(t *testing.T) {
	tenant := uuid.New()
	creator := ident(tenant, false, false, false)
	other := ident(tenant, false, false, false)
	admin := ident(tenant, false, true, false)

	if err := Ownership(creator, creator.ID); err != nil {
		t.Fatalf("creator: unexpected error %v", err)
	}
	if err := Ownership(admin, creator.ID); err != nil {
		t.Fatalf("admin override: unexpected error %v", err)
	}
	if err := Ownership(other, creator.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unrelated member: got %v, want ErrForbidden", err)
	}
}
