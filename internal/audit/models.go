package audit

import "time"

// Event is an immutable, append-only record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and IP capture are best-effort; do not block the action on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	// BotID scopes the event to a business when known.
	BotID string `json:"bot_id,omitempty"`

	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`

	Message string `json:"message,omitempty"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeLeadStatusChanged EventType = "lead_status_changed"
	EventTypeKnowledgeUploaded EventType = "knowledge_uploaded"
)
