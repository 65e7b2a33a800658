package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the enumerated type of an audited action.
type AuditAction string

const (
	AuditTaskCreated          AuditAction = "TASK_CREATED"
	AuditTaskUpdated          AuditAction = "TASK_UPDATED"
	AuditTaskDeleted          AuditAction = "TASK_DELETED"
	AuditTaskAssigned         AuditAction = "TASK_ASSIGNED"
	AuditTaskCompleted        AuditAction = "TASK_COMPLETED"
	AuditBoardCreated         AuditAction = "BOARD_CREATED"
	AuditBoardUpdated         AuditAction = "BOARD_UPDATED"
	AuditBoardDeleted         AuditAction = "BOARD_DELETED"
	AuditScheduledTaskCreated AuditAction = "SCHEDULED_TASK_CREATED"
	AuditScheduledTaskFailed  AuditAction = "SCHEDULED_TASK_FAILED"
	AuditCrossTenantRejected  AuditAction = "CROSS_TENANT_REJECTED"
)

// AuditLog is an append-only record of a significant action within a tenant
// partition. ActorID is nil for system actions (e.g. the scheduler engine).
type AuditLog struct {
	ID          uuid.UUID      `json:"id"`
	ActorID     *uuid.UUID     `json:"actor_id,omitempty"`
	ActionType  AuditAction    `json:"action_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
