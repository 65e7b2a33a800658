package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/response"
	"github.com/taskhive/backend/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	byEmail map[string]*models.Identity
}

func (s *stubStore) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	if ident, ok := s.byEmail[email]; ok {
		return ident, nil
	}
	return nil, ErrInvalidCredential
}

func (s *stubStore) GetByID(context.Context, uuid.UUID) (*models.Identity, error) {
	return nil, ErrInvalidCredential
}

func (s *stubStore) Create(context.Context, CreateParams) (*models.Identity, error) {
	return nil, ErrEmailTaken
}

func (s *stubStore) ListByTenant(context.Context, uuid.UUID) ([]models.IdentityPublic, error) {
	return nil, nil
}

func (s *stubStore) SetRestricted(context.Context, uuid.UUID, bool) error { return nil }
func (s *stubStore) Deactivate(context.Context, uuid.UUID) error          { return nil }

func newLoginRouter(t *testing.T) (*gin.Engine, *models.TenantBinding) {
	t.Helper()
	binding := &models.TenantBinding{TenantID: uuid.New(), Name: "acme", Schema: "tenant_acme", Active: true}

	hash, err := utils.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &stubStore{byEmail: map[string]*models.Identity{
		"user@acme.test": {
			ID:           uuid.New(),
			Email:        "user@acme.test",
			PasswordHash: hash,
			TenantID:     binding.TenantID,
			IsActive:     true,
		},
		"user@beta.test": {
			ID:           uuid.New(),
			Email:        "user@beta.test",
			PasswordHash: hash,
			TenantID:     uuid.New(),
			IsActive:     true,
		},
	}}

	handler := NewHandler(store, NewJWTService("test-secret", 1), nil, zap.NewNop())
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextTenant, binding)
		c.Set(middleware.ContextPartition, partition.Partition{Schema: binding.Schema})
	})
	router.POST("/auth/login", handler.Login)
	return router, binding
}

func login(router *gin.Engine, email, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLoginSuccess(t *testing.T) {
	router, _ := newLoginRouter(t)
	w := login(router, "user@acme.test", "correct-password")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Data TokenResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Token == "" {
		t.Error("expected a token")
	}
}

// Every rejection path must be indistinguishable to the caller: same status,
// same message, whether the email is unknown, the password is wrong, or the
// account exists under another tenant.
func TestLoginRejectionsIndistinguishable(t *testing.T) {
	router, _ := newLoginRouter(t)
	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@acme.test", "correct-password"},
		{"wrong password", "user@acme.test", "wrong-password"},
		{"valid credential of another tenant", "user@beta.test", "correct-password"},
	}
	var bodies []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := login(router, tc.email, tc.password)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			var body response.Body
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != "invalid email or password" {
				t.Errorf("error = %q, want the generic message", body.Error)
			}
			bodies = append(bodies, w.Body.String())
		})
	}
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("rejection bodies differ: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestLoginUnknownEmailStillComparesPassword(t *testing.T) {
	// The guard itself: the dummy hash must be a structurally valid bcrypt
	// digest, so the miss path runs a full-cost comparison instead of bailing
	// out early on a parse error.
	err := bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte("anything"))
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		t.Fatalf("dummy hash comparison = %v, want a genuine mismatch", err)
	}
}
