// Package model defines the language model boundary used by the agent
// loop. Implementations turn a conversation into the next assistant reply;
// retries and backoff are their own concern.
package model

import "context"

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Model produces the next assistant message for a conversation.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Model interface {
	// Name returns the model identifier used for logging and metrics.
	Name() string

	// Complete returns the assistant reply for messages.
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Func adapts a function to the Model interface.
type Func func(ctx context.Context, messages []Message) (string, error)

// Name implements Model.
func (f Func) Name() string { return "func" }

// Complete implements Model.
func (f Func) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
