// Package agent provides the conversational agent service: per-identity
// chat sessions and the external completion engine integration.
package agent

// Role tags a chat turn's author.
type Role string

const (
	// RoleUser marks a turn written by the authenticated caller.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the completion engine.
	RoleAssistant Role = "assistant"

	// RoleSystem marks instructions injected by the service.
	RoleSystem Role = "system"
)

// Turn is a single entry in a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
