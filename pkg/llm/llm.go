// Package llm defines the conversation types and streaming client interface
// used to generate agent replies.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation history.
type Message struct {
	Role    Role
	Content string
}

// Request describes one generation call.
type Request struct {
	// Model is the provider-specific model name, e.g. "gpt-4o-mini".
	Model string

	// System is the system prompt. Sent out-of-band where the provider
	// supports that.
	System string

	// Messages is the conversation history, oldest first.
	Messages []Message

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int
}

// Stream yields text deltas as the model produces them. Next returns io.EOF
// when the reply is complete. Close releases the underlying connection and is
// safe to call at any point, including mid-stream on interruption.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Client generates streamed replies.
type Client interface {
	// Name returns the provider identifier.
	Name() string

	// StreamChat starts a streaming generation. Cancelling ctx aborts it.
	StreamChat(ctx context.Context, req *Request) (Stream, error)
}
