package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded in the support store.
const (
	AuditActionLogin    = "LOGIN"
	AuditActionCreate   = "CREATE"
	AuditActionEnroll   = "ENROLL"
	AuditActionUnenroll = "UNENROLL"
)

// Audit resources.
const (
	AuditResourceAuth       = "AUTH"
	AuditResourceUser       = "USER"
	AuditResourceEnrollment = "ENROLLMENT"
)

// AuditLog is an append-only support-store row. UserID references an
// identity user by value and may be nil for anonymous actions.
type AuditLog struct {
	ID         int64           `db:"id" json:"id"`
	UserID     *UserRef        `db:"user_id" json:"userId,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resourceId,omitempty"`
	Details    json.RawMessage `db:"details" json:"details"`
	IPAddress  string          `db:"ip_address" json:"ipAddress"`
	RequestID  string          `db:"request_id" json:"requestId"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// System log levels.
const (
	LogLevelInfo = "INFO"
	LogLevelWarn = "WARN"
)

// SystemLog is an append-only operational event.
type SystemLog struct {
	ID        int64     `db:"id" json:"id"`
	Level     string    `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
	Context   string    `db:"context" json:"context"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
