// Package session provides conversation persistence: sessions and
// their ordered message history in PostgreSQL, plus the in-process
// busy locks that serialize turns per session.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message status values. A message is incomplete when the stream that
// produced it failed partway through.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// Session represents one conversation.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolCall is one tool invocation requested by the assistant. ID pairs
// the request with its tool-result message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single entry in a session's history.
//
// Assistant messages may carry ToolCalls alongside (or instead of)
// text content. Tool messages carry the result text in Content and
// point back to the originating call via ToolCallID.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	SessionID      uuid.UUID  `json:"session_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID     string     `json:"tool_call_id,omitempty"`
	ToolName       string     `json:"tool_name,omitempty"`
	Status         string     `json:"status"`
	SequenceNumber int32      `json:"sequence_number"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DefaultTitle builds the fallback title for sessions created without
// a name.
func DefaultTitle(now time.Time) string {
	return "Chat " + now.Format("2006-01-02 15:04")
}
