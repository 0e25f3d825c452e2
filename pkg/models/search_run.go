package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
)

// SearchRun is the bookkeeping record of one pipeline run started through the
// API. The browser polls the run by ID; the backend job ID is only known once
// the job has been created (or immediately, on the resume path).
type SearchRun struct {
	ID          uuid.UUID      `db:"id"           json:"id"`
	UserID      uuid.UUID      `db:"user_id"      json:"user_id"`
	Query       string         `db:"query"        json:"query"`
	JobID       string         `db:"job_id"       json:"job_id,omitempty"`
	MaxItems    int            `db:"max_items"    json:"max_items"`
	Stage       progress.Stage `db:"stage"        json:"stage"`
	ErrorDetail *string        `db:"error_detail" json:"error_detail,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"   json:"updated_at"`
}

// RunStatus is the volatile view of a run served to pollers.
type RunStatus struct {
	RunID    uuid.UUID       `json:"run_id"`
	Progress progress.Update `json:"progress"`
	Result   *SearchOutcome  `json:"result,omitempty"`
}
