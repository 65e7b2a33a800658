package identity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()
	tenantID := uuid.New()

	token, err := svc.Generate(userID, "a@acme.test", tenantID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.TenantID != tenantID {
		t.Errorf("TenantID = %s, want %s", claims.TenantID, tenantID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 1).Generate(uuid.New(), "a@acme.test", uuid.New())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, err = NewJWTService("secret-b", 1).Validate(token)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("got %v, want ErrInvalidCredential", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -1)
	token, err := svc.Generate(uuid.New(), "a@acme.test", uuid.New())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("got %v, want ErrInvalidCredential", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Validate(tok); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Validate(%q): got %v, want ErrInvalidCredential", tok, err)
		}
	}
}

// Identifiers must be unique across the whole system, not per tenant. A
// collision would let an identifier be reinterpreted against another tenant's
// partition.
func TestIssueIDGloballyUnique(t *testing.T) {
	const n = 10000
	seen := make(map[uuid.UUID]struct{}, n)
	for i := 0; i < n; i++ {
		id := IssueID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identifier issued: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIssueIDTimeOrdered(t *testing.T) {
	a, b := IssueID(), IssueID()
	if a.Version() != 7 || b.Version() != 7 {
		t.Skip("clock source unavailable, fallback identifiers in use")
	}
	if a.String() >= b.String() {
		t.Errorf("identifiers not monotonic: %s then %s", a, b)
	}
}
