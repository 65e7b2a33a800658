package scheduled

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	createErr    error
	gotTenantID  uuid.UUID
	gotAssignees []uuid.UUID
}

func (s *stubStore) Create(_ context.Context, _ partition.Partition, tenantID uuid.UUID, st *models.ScheduledTask, _ audit.Entry) error {
	s.gotTenantID = tenantID
	s.gotAssignees = st.Assignees
	if s.createErr != nil {
		return s.createErr
	}
	st.ID = uuid.New()
	st.CreatedAt = time.Now()
	return nil
}

func (s *stubStore) GetByID(context.Context, partition.Partition, uuid.UUID) (*models.ScheduledTask, error) {
	return nil, models.ErrNotFound
}

func (s *stubStore) List(context.Context, partition.Partition) ([]models.ScheduledTask, error) {
	return nil, nil
}

func (s *stubStore) Delete(context.Context, partition.Partition, uuid.UUID) error {
	return models.ErrNotFound
}

func newCreateRouter(store Store, binding *models.TenantBinding, ident *models.Identity) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextTenant, binding)
		c.Set(middleware.ContextPartition, partition.Partition{Schema: binding.Schema})
		c.Set(middleware.ContextIdentity, ident)
	})
	router.POST("/scheduled-tasks", NewHandler(store).Create)
	return router
}

func postScheduled(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/scheduled-tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateRejectsInvalidAssignee(t *testing.T) {
	binding := &models.TenantBinding{TenantID: uuid.New(), Name: "acme", Schema: "tenant_acme", Active: true}
	ident := &models.Identity{ID: uuid.New(), TenantID: binding.TenantID, IsActive: true}
	store := &stubStore{createErr: ErrInvalidAssignee}
	router := newCreateRouter(store, binding, ident)

	// A foreign or nonexistent assignee must be rejected at creation, not
	// silently accepted and dropped at promotion.
	w := postScheduled(router, `{"title":"standup","scheduled_time":"2026-09-01T09:00:00Z","assignees":["`+uuid.NewString()+`"]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
}

func TestCreateValidatesAgainstBoundTenant(t *testing.T) {
	binding := &models.TenantBinding{TenantID: uuid.New(), Name: "acme", Schema: "tenant_acme", Active: true}
	ident := &models.Identity{ID: uuid.New(), TenantID: binding.TenantID, IsActive: true}
	store := &stubStore{}
	router := newCreateRouter(store, binding, ident)

	assignee := uuid.New()
	w := postScheduled(router, `{"title":"standup","scheduled_time":"2026-09-01T09:00:00Z","assignees":["`+assignee.String()+`"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if store.gotTenantID != binding.TenantID {
		t.Errorf("assignees validated against tenant %s, want the bound tenant %s", store.gotTenantID, binding.TenantID)
	}
	if len(store.gotAssignees) != 1 || store.gotAssignees[0] != assignee {
		t.Errorf("assignees passed through = %v", store.gotAssignees)
	}
}
