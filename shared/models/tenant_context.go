package models

import (
	"github.com/google/uuid"
)

// AuthMethod records how the tenant of a request was resolved
type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodAPIKey  AuthMethod = "api_key"
)

// TenantContext is the per-request identity. It is built exactly once per request, either
// from a validated session or from a validated API key.
type TenantContext struct {
	BusinessID    uuid.UUID  `json:"business_id"`
	BusinessName  string     `json:"business_name"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	Role          UserRole   `json:"role"`
	Method        AuthMethod `json:"auth_method"`
	SessionHandle string     `json:"session_handle,omitempty"`
}

// IsTeamMember reports whether a PIN-authenticated user is acting
func (tc *TenantContext) IsTeamMember() bool {
	return tc.UserID != nil
}

// CanManage reports whether the identity may administer the business
func (tc *TenantContext) CanManage() bool {
	return tc.Method == AuthMethodSession && tc.Role.CanManage()
}

// All lists every model owned by the schema, in migration order
func All() []interface{} {
	return []interface{}{
		&Business{},
		&User{},
		&Client{},
		&Service{},
		&Job{},
		&Estimate{},
		&EstimateItem{},
		&Invoice{},
		&InvoiceItem{},
		&TimeEntry{},
		&ActivityLog{},
		&FailedNotification{},
		&DocumentCounter{},
	}
}
