// Package jobs hosts scheduled background work: retention purges and summary
// cache warmups.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRetentionCleanup purges records past each tenant's retention window.
	TaskRetentionCleanup = "audit:retention_cleanup"
	// TaskSummaryWarmup rebuilds summary caches for recently active tenants.
	TaskSummaryWarmup = "audit:summary_warmup"
)

// RetentionCleanupPayload scopes a cleanup run. An empty TenantID means all
// tenants with a stored retention policy.
type RetentionCleanupPayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// NewRetentionCleanupTask constructs an Asynq task for a cleanup run.
func NewRetentionCleanupTask(payload RetentionCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetentionCleanup, data), nil
}

// SummaryWarmupPayload scopes a warmup run to tenants active within the
// given window, in hours.
type SummaryWarmupPayload struct {
	ActiveWithinHours int `json:"active_within_hours"`
}

// NewSummaryWarmupTask constructs an Asynq task for a warmup run.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}
