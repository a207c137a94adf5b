package provider

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a text-only conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateConfig carries optional sampling parameters.
// Nil fields leave the backend default in place.
type GenerateConfig struct {
	Temperature     *float32
	MaxOutputTokens *int32
}

// Provider sends a full conversation to an LLM and returns the text of its reply.
type Provider interface {
	Generate(ctx context.Context, messages []Message, cfg GenerateConfig) (string, error)
}

// Float32 returns a pointer to v, for populating GenerateConfig.
func Float32(v float32) *float32 {
	return &v
}
