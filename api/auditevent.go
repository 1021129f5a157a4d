package api

import (
	"time"

	"github.com/keyward/keyward/uid"
)

// AuditEvent is a single immutable entry from the audit log.
type AuditEvent struct {
	ID        uid.ID                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Provider  string                 `json:"provider"`
	APIKeyID  uid.ID                 `json:"apiKeyID"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	ClientIP  string                 `json:"clientIP,omitempty"`
}

type ListAuditEventsRequest struct {
	// Actor matches entries written by a single owner, or "system" for
	// entries written by the revalidation job.
	Actor    string    `form:"actor"`
	Provider string    `form:"provider"`
	Action   string    `form:"action"`
	Since    time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until    time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
}
