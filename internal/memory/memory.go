// Package memory stores per-session conversation history for multi-turn dialogs.
package memory

import (
	"context"
	"strings"
	"time"
)

// Roles of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role      string    `json:"role" validate:"required,oneof=user assistant"`
	Content   string    `json:"content" validate:"required"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Store keeps the recent history of each session.
type Store interface {
	AddMessage(ctx context.Context, sessionID string, msg Message) error
	// GetRecentHistory returns up to n of the latest messages, oldest first.
	GetRecentHistory(ctx context.Context, sessionID string, n int) ([]Message, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// UserTurns counts the user messages in history, the conversation depth used for routing.
func UserTurns(history []Message) int {
	n := 0
	for _, m := range history {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// FormatForPrompt formats the conversation history for inclusion in an LLM prompt.
// Returns empty string if no history exists.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("User: " + msg.Content + "\n")
		case RoleAssistant:
			sb.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	return sb.String()
}
