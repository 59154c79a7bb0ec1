package domain

import "time"

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Messages are immutable once stored
// except through an explicit edit, which stamps Edited and EditedAt.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Edited    bool           `json:"edited,omitempty"`
	EditedAt  *time.Time     `json:"edited_at,omitempty"`
}
