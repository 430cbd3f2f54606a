// Package queue carries security events over RabbitMQ.  The auth core
// publishes an event for every recorded login attempt and every
// security-sensitive account change; a background consumer appends
// them to logs/security.log for offline review.
package queue

// Event types published to the auth.security queue.
const (
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventPasswordReset  = "password_reset"
	EventTwoFAEnabled   = "twofa_enabled"
	EventTwoFADisabled  = "twofa_disabled"
)

// SecurityEvent is the payload published per security-relevant action.
// It carries enough context for downstream alerting without a query
// back to the primary database.
type SecurityEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Device     string `json:"device,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
