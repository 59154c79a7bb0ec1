package domain

import "context"

// ChatRequest is the contract this core hands to the external LLM
// collaborator. The call itself is opaque: the core only consumes its
// resolved text or reported failure.
type ChatRequest struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is the collaborator's resolved result.
type ChatResponse struct {
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
}

// Provider is the external LLM collaborator boundary.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Healthy(ctx context.Context) error
}
