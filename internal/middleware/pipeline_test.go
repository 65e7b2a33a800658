package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDirectory struct {
	byKey map[string]*models.TenantBinding
}

func (d *stubDirectory) Resolve(_ context.Context, routingKey string) (*models.TenantBinding, error) {
	b, ok := d.byKey[routingKey]
	if !ok {
		return nil, models.ErrUnknownTenant
	}
	if !b.Active {
		return nil, models.ErrTenantInactive
	}
	return b, nil
}

type stubAuthenticator struct {
	byToken map[string]*models.Identity
}

func (a *stubAuthenticator) Authenticate(_ context.Context, credential string) (*models.Identity, error) {
	ident, ok := a.byToken[credential]
	if !ok {
		return nil, errors.New("invalid credential")
	}
	return ident, nil
}

type stubRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *stubRecorder) RecordViolation(context.Context, partition.Partition, *models.Identity, string, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *stubRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type pipelineFixture struct {
	router   *gin.Engine
	recorder *stubRecorder
	acme     *models.TenantBinding
	beta     *models.TenantBinding
	acmeUser *models.Identity
	betaUser *models.Identity
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	acme := &models.TenantBinding{TenantID: uuid.New(), Name: "acme", Schema: "tenant_acme", Active: true}
	beta := &models.TenantBinding{TenantID: uuid.New(), Name: "beta", Schema: "tenant_beta", Active: true}
	gone := &models.TenantBinding{TenantID: uuid.New(), Name: "gone", Schema: "tenant_gone", Active: false}

	acmeUser := &models.Identity{ID: uuid.New(), TenantID: acme.TenantID, IsActive: true}
	betaUser := &models.Identity{ID: uuid.New(), TenantID: beta.TenantID, IsActive: true}

	dir := &stubDirectory{byKey: map[string]*models.TenantBinding{
		"acme.test": acme,
		"beta.test": beta,
		"gone.test": gone,
	}}
	auth := &stubAuthenticator{byToken: map[string]*models.Identity{
		"acme-token": acmeUser,
		"beta-token": betaUser,
	}}
	rec := &stubRecorder{}

	router := gin.New()
	router.Use(ResolveTenant(dir, partition.NewManager(nil, nil)))
	router.Use(Authenticate(auth))
	router.Use(VerifyTenant(rec, zap.NewNop()))
	router.GET("/whoami", func(c *gin.Context) {
		ident := IdentityFromContext(c)
		part := PartitionFromContext(c)
		response.OK(c, gin.H{"identity": ident.ID, "schema": part.Schema})
	})
	return &pipelineFixture{router: router, recorder: rec, acme: acme, beta: beta, acmeUser: acmeUser, betaUser: betaUser}
}

func (f *pipelineFixture) request(host, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPipelineHappyPath(t *testing.T) {
	f := newPipeline(t)
	w := f.request("acme.test", "acme-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Data struct {
			Identity uuid.UUID `json:"identity"`
			Schema   string    `json:"schema"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Identity != f.acmeUser.ID {
		t.Errorf("identity = %s, want %s", body.Data.Identity, f.acmeUser.ID)
	}
	if body.Data.Schema != "tenant_acme" {
		t.Errorf("schema = %s, want tenant_acme", body.Data.Schema)
	}
}

func TestPipelineUnknownTenantFailsClosed(t *testing.T) {
	f := newPipeline(t)
	// Even with a valid credential, an unknown routing key never binds a
	// partition.
	w := f.request("nobody.test", "acme-token")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPipelineInactiveTenantRejectedBeforeAuth(t *testing.T) {
	f := newPipeline(t)
	w := f.request("gone.test", "acme-token")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestPipelineRejectsMissingOrBadCredential(t *testing.T) {
	f := newPipeline(t)
	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"unknown token", "forged"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.request("acme.test", tc.token)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestPipelineRejectsMalformedAuthorizationHeader(t *testing.T) {
	f := newPipeline(t)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Host = "acme.test"
	req.Header.Set("Authorization", "Basic acme-token")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestPipelineCrossTenantRejected(t *testing.T) {
	f := newPipeline(t)
	// A structurally valid beta credential presented at acme's domain.
	w := f.request("acme.test", "beta-token")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var body response.Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Generic category only; the message must not say the tenant mismatched.
	if body.Error != "access denied" {
		t.Errorf("error = %q, want generic message", body.Error)
	}
	if f.recorder.count() != 1 {
		t.Errorf("violation recorded %d times, want 1", f.recorder.count())
	}
}

func TestRestrictedAdminDeniedMutatingRoutes(t *testing.T) {
	tenant := &models.TenantBinding{TenantID: uuid.New(), Name: "acme", Schema: "tenant_acme", Active: true}
	restrictedAdmin := &models.Identity{
		ID:           uuid.New(),
		TenantID:     tenant.TenantID,
		IsAdmin:      true,
		IsRestricted: true,
		IsActive:     true,
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextTenant, tenant)
		c.Set(ContextPartition, partition.Partition{Schema: tenant.Schema})
		c.Set(ContextIdentity, restrictedAdmin)
	})
	// Restriction must deny every mutating operation regardless of role, so
	// admin-gated mutations carry both guards.
	router.POST("/mutate", RequireRole(models.RoleAdmin), RequireWritable(), func(c *gin.Context) {
		response.OK(c, gin.H{"ran": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; restricted admin must not mutate", w.Code)
	}
}

func TestRoutingKeyNormalization(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"acme.test", "acme.test"},
		{"acme.test:8080", "acme.test"},
		{"ACME.Test:443", "acme.test"},
		{" acme.test ", "acme.test"},
	}
	for _, tc := range cases {
		if got := RoutingKey(tc.host); got != tc.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}
