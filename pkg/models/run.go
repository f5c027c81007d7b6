package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run is the audit record of one orchestration invocation: which operation
// ran against which job identity, whether it changed anything, and how it
// ended.
type Run struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	TenantID      uuid.UUID `db:"tenant_id"      json:"tenant_id"`
	Operation     string    `db:"operation"      json:"operation"`
	InsightsGroup string    `db:"insights_group" json:"insights_group"`
	SiteName      string    `db:"site_name"      json:"site_name,omitempty"`
	JobName       string    `db:"job_name"       json:"job_name,omitempty"`
	DryRun        bool      `db:"dry_run"        json:"dry_run"`
	Changed       bool      `db:"changed"        json:"changed"`
	Status        string    `db:"status"         json:"status"`
	ErrorMessage  *string   `db:"error_message"  json:"error_message,omitempty"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}
