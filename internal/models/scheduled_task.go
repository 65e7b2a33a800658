package models

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence is how often a scheduled task repeats.
type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ValidRecurrence reports whether r is a known pattern.
func ValidRecurrence(r Recurrence) bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// ProcessingStatus is the engine-owned state of a scheduled task.
// Each row transitions from pending to exactly one terminal state; a recurring
// pattern spawns a fresh pending row per occurrence.
type ProcessingStatus int

const (
	ProcessingPending   ProcessingStatus = 0
	ProcessingProcessed ProcessingStatus = 1
	ProcessingFailed    ProcessingStatus = 2
)

// ScheduledTask is a deferred instruction to create a Task at or after
// ScheduledTime, optionally recurring.
type ScheduledTask struct {
	ID               uuid.UUID        `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Priority         TaskPriority     `json:"priority"`
	BoardID          *uuid.UUID       `json:"board_id,omitempty"`
	CreatedBy        uuid.UUID        `json:"created_by"`
	Assignees        []uuid.UUID      `json:"assignees"`
	DueDate          *time.Time       `json:"due_date,omitempty"`
	ScheduledTime    time.Time        `json:"scheduled_time"`
	Recurrence       Recurrence       `json:"recurrence"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}
