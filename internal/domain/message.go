package domain

// Role labels a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the tenant's end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the answerer.
	RoleAssistant Role = "assistant"
	// RoleSystem marks grounding instructions for the model.
	RoleSystem Role = "system"
)

// Message is one ordered turn of a tenant's conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
