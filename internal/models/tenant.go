package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one organization with its isolated data partition.
// The partition (a PostgreSQL schema) persists even when the tenant is deactivated.
type Tenant struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Schema         string     `json:"-"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	MaxUsers       int        `json:"max_users"`
	MaxTasks       int        `json:"max_tasks"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TenantBinding is the resolved routing result: enough to bind a partition
// and verify identities against it. Returned by the tenant directory.
type TenantBinding struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Schema   string    `json:"schema"`
	Active   bool      `json:"active"`
}

// SubscriptionPlan is a billing tier in the shared store.
type SubscriptionPlan struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	MaxUsers    int       `json:"max_users"`
	MaxTasks    int       `json:"max_tasks"`
	CreatedAt   time.Time `json:"created_at"`
}

// Subscription ties a tenant to a plan. IsActive is the kill-switch:
// a lapsed subscription deactivates the tenant without touching its partition.
type Subscription struct {
	ID        uuid.UUID  `json:"id"`
	PlanID    *uuid.UUID `json:"plan_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	StartedAt time.Time  `json:"started_at"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}
