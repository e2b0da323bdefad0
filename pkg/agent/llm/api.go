// Package llm defines the provider-agnostic text-generation client
// abstraction and the middleware chaining used to decorate it.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversational turn.
type Message struct {
	Role    string
	Content string
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Request is a completion request to a text-generation backend.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is a completion result. Token counts are zero when the backend
// does not report usage.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client is the minimal capability surface the tool needs from a
// text-generation backend: one blocking completion call.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	ModelName() string
}
