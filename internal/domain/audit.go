package domain

import "time"

// Audit actions.
const (
	AuditActionCreate  = "create"
	AuditActionDelete  = "delete"
	AuditActionRestart = "restart"
)

// AuditResourceStore is the resource type recorded for store actions.
const AuditResourceStore = "store"

// AuditEntry is an append-only record of an externally triggered action.
type AuditEntry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	ResourceName string    `json:"resource_name,omitempty"`
	Details      string    `json:"details,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
