package llm

import (
	"context"
	"encoding/json"
)

// Provider represents an LLM provider
type Provider string

const (
	ProviderOllama Provider = "ollama"
)

// Tier represents the LLM tier for routing
type Tier int

const (
	Tier1 Tier = 1 // Fast - pairwise judgments, suggestions
	Tier2 Tier = 2 // Thorough - reviews, plans, reports
)

// Request represents an LLM completion request
type Request struct {
	Tier Tier

	// Model overrides the tier's model when set
	Model string

	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stop        []string

	// Format constrains the output: the JSON string "json" or a JSON schema
	Format json.RawMessage
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a single user message request body
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// Response represents an LLM completion response
type Response struct {
	Content      string
	Model        string
	Provider     Provider
	InputTokens  int
	OutputTokens int
	FinishReason string
	Cached       bool // True if response was served from cache
}

// Completer produces completions. The oracle and the prompt chain depend
// only on this.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Client is a Completer backed by a concrete provider
type Client interface {
	Completer
	Name() Provider
	Available() bool
}
