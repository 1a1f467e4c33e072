package llm

import (
	"context"
	"errors"
)

// ErrEmptyGeneration indicates the backend returned no usable text.
var ErrEmptyGeneration = errors.New("model returned no text")

// Message roles, matching the common chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of an ordered chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Chat takes an ordered message history (system instructions first) and
// returns the generated text, or an error wrapping ErrEmptyGeneration when
// the backend produced nothing.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}
