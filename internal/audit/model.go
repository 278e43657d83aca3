// Package audit implements storage, querying and live fan-out of audit
// records.
package audit

import (
	"encoding/json"
	"time"
)

// Status is the outcome of the audited action.
type Status string

// Outcome statuses.
const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusPending Status = "PENDING"
)

// Severity classifies how serious an audited event is.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Action is the enumerated verb describing what happened.
type Action string

// Known actions.
const (
	ActionCreate    Action = "CREATE"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionLogin     Action = "LOGIN"
	ActionLogout    Action = "LOGOUT"
	ActionApprove   Action = "APPROVE"
	ActionReject    Action = "REJECT"
	ActionExport    Action = "EXPORT"
	ActionConfigure Action = "CONFIGURE"
)

// ValidStatus reports whether s is a known outcome status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusPending:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Actor identifies who performed the audited action. A zero Actor renders as
// "system".
type Actor struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// DisplayName returns the human label for the actor.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	if a.UserID != "" {
		return a.UserID
	}
	return "system"
}

// Record is one immutable logged system event.
type Record struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id,omitempty"`
	Actor        Actor             `json:"actor"`
	Action       Action            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Status       Status            `json:"status"`
	Severity     Severity          `json:"severity"`
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

// Filters describes the currently active query. Empty fields are skipped.
type Filters struct {
	Action   string
	Resource string
	Status   string
	Severity string
	Search   string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// ListResult is a page of records plus the authoritative filtered total.
type ListResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

// CountBucket is one aggregate bucket in the summary.
type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates audit activity for the dashboard header cards.
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

// RetentionSettings is the per-tenant purge policy, server-owned.
type RetentionSettings struct {
	TenantID      string     `json:"tenant_id"`
	RetentionDays int        `json:"retention_days" validate:"oneof=90 120 150 180 210 240 270 300 330 365"`
	LastCleanupAt *time.Time `json:"last_cleanup_at,omitempty"`
	LogsDeleted   int64      `json:"logs_deleted,omitempty"`
}
