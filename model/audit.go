package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records account-level events (registration, logins, resets).
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	AccountID string         `gorm:"index:idx_audit_account;size:36" json:"account_id"`
	Username  string         `gorm:"size:64" json:"username"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Detail    datatypes.JSON `json:"detail"`
	Error     string         `gorm:"type:text" json:"error"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
