// Package chat is the conversation-history specialization of the completion
// engine. It fixes the unit of generation to a list of role-tagged messages:
// histories are rendered to transcripts for the shared engine and generated
// text comes back as assistant replies. All retry, batching, and
// post-processing semantics are those of pkg/completion.
package chat

import "strings"

// Role identifies the author of a message
type Role string

// Supported roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System creates a system message
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User creates a user message
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant creates an assistant message
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// RenderTranscript renders a history into the flat text form sent to the
// backend. Each message becomes one "role: content" line; rendering is
// deterministic so equal histories always produce equal transcripts.
func RenderTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
