// Package llm defines the Provider interface for the conversation partner's
// language model backends.
//
// Implementations wrap a chat-completion API (OpenAI, Anthropic, Ollama, and
// the rest of the any-llm family) behind a single blocking call. The tutor
// produces one short reply per learner turn, so streaming is not part of
// the interface.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// ErrRejected is returned when a backend refuses the request itself, e.g.
// because the prompt exceeds its context window. Sending the same request
// again will not help.
var ErrRejected = errors.New("llm: request rejected")

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Name optionally identifies the speaker when several users share a
	// transcript.
	Name string `json:"name,omitempty"`
}

// CompletionRequest holds the inputs for a single completion call.
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Messages is the conversation history, oldest first.
	Messages []Message

	// Temperature controls sampling randomness. Zero uses the provider
	// default.
	Temperature float64

	// MaxTokens caps the length of the reply. Zero uses the provider default.
	MaxTokens int
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over chat-completion backends.
type Provider interface {
	// Complete sends req to the model and blocks until the full reply is
	// available or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many prompt tokens messages would consume.
	CountTokens(messages []Message) (int, error)
}

// EstimateTokens approximates the prompt size of messages. Japanese text
// tokenises at roughly one token per character while Latin text runs about
// four characters per token, so the two are counted separately. Each message
// adds a fixed overhead of four tokens for its role framing.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		wide, narrow := 0, 0
		for _, r := range m.Content {
			// U+3000 and above holds CJK punctuation, kana, kanji and
			// full-width forms.
			if r >= 0x3000 {
				wide++
			} else {
				narrow++
			}
		}
		total += wide + (narrow+3)/4 + 4
	}
	return total
}
