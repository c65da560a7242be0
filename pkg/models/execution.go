package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a dashboard item execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// DashboardItem is a persisted display: one SQL statement plus display metadata.
type DashboardItem struct {
	ID      uuid.UUID     `json:"id"`
	Display DisplayConfig `json:"display"`
}

// DashboardItemExecution records one refresh of a dashboard item.
type DashboardItemExecution struct {
	ID           uuid.UUID        `json:"id"`
	ItemID       uuid.UUID        `json:"item_id"`
	Status       ExecutionStatus  `json:"status"`
	Results      []map[string]any `json:"results,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}
