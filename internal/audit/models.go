package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block requests on audit failures.
//
// Storage: table audit_events with an INSERT-only policy (see internal/migrations).
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the resolved principal, if any.
	ActorUserID    string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorPrivilege string `json:"actor_privilege,omitempty" db:"actor_privilege"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	Path      string `json:"path,omitempty" db:"path"`

	// Mode is the guard mode that produced a denial.
	Mode string `json:"mode,omitempty" db:"mode"`
	// Outcome is the verdict outcome for denials.
	Outcome string `json:"outcome,omitempty" db:"outcome"`
	// Reason is the error text behind the event.
	Reason string `json:"reason,omitempty" db:"reason"`

	// TokenID is set for revocations.
	TokenID string `json:"token_id,omitempty" db:"token_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAccessDenied EventType = "access_denied"
	EventTypeTokenRevoked EventType = "token_revoked"
)
