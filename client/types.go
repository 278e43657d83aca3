package client

import (
	"encoding/json"
	"time"
)

// Actor identifies who performed an audited action.
type Actor struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Record is one immutable audit event as served by the API.
type Record struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id,omitempty"`
	Actor        Actor             `json:"actor"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Status       string            `json:"status"`
	Severity     string            `json:"severity"`
	IP           string            `json:"ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Description  string            `json:"description,omitempty"`
	Before       json.RawMessage   `json:"before,omitempty"`
	After        json.RawMessage   `json:"after,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ServiceName  string            `json:"service_name,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
	StoredAt     time.Time         `json:"stored_at"`
}

// ListResult is one page of records plus the server-authoritative total.
type ListResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

// CountBucket is one aggregate bucket in the summary.
type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates audit activity for dashboard header cards.
type Summary struct {
	Total          int           `json:"total"`
	ByAction       []CountBucket `json:"by_action"`
	ByResource     []CountBucket `json:"by_resource"`
	ByStatus       []CountBucket `json:"by_status"`
	BySeverity     []CountBucket `json:"by_severity"`
	TopActors      []CountBucket `json:"top_actors"`
	RecentFailures []Record      `json:"recent_failures"`
	From           time.Time     `json:"from"`
	To             time.Time     `json:"to"`
}

// RetentionSettings is the tenant's server-owned purge policy.
type RetentionSettings struct {
	TenantID      string     `json:"tenant_id"`
	RetentionDays int        `json:"retention_days"`
	LastCleanupAt *time.Time `json:"last_cleanup_at,omitempty"`
	LogsDeleted   int64      `json:"logs_deleted,omitempty"`
}

// Filters describes the active query. Empty fields are skipped during
// serialization; the whole value is replaced on each change.
type Filters struct {
	Action   string
	Resource string
	Status   string
	Severity string
	Search   string
	From     time.Time
	To       time.Time
}

// Pagination is the client-held paging state. Total is authoritative only
// from the last successful fetch response.
type Pagination struct {
	Limit  int
	Offset int
	Total  int
}
