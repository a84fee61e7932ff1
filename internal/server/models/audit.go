package models

import "time"

// Audit actions.
const (
	ActionRegister        = "REGISTER"
	ActionAdminBootstrap  = "ADMIN_BOOTSTRAP"
	ActionLoginFailed     = "LOGIN_FAILED"
	ActionLoginSuccess    = "LOGIN_SUCCESS"
	ActionRoleChange      = "ROLE_CHANGE"
	ActionUserDelete      = "USER_DELETE"
	ActionUserSelfDelete  = "USER_SELF_DELETE"
	ActionUserAnonymize   = "USER_ANONYMIZE"
	ActionPasswordChanged = "PASSWORD_CHANGED"
	ActionPasswordReset   = "PASSWORD_RESET"
)

// TargetAccount is the target type of every action above.
const TargetAccount = "accounts"

// AuditRecord is one append-only audit row. ActorID becomes nil when the
// actor account is deleted; the record itself is never changed otherwise.
type AuditRecord struct {
	ID         int64          `json:"id"`
	ActorID    *int64         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   *int64         `json:"target_id"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// ActorUsername is filled on read from the actor's current row, empty
	// when the actor is gone.
	ActorUsername string `json:"actor_username,omitempty"`
}
