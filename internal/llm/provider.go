// Package llm provides a unified interface over the LLM providers used for
// filter extraction, chat replies and text embeddings.
package llm

import (
	"context"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role
	Content string
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionRequest represents a request to the LLM.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONSchema  map[string]any // for structured output
	SchemaName  string         // label for the schema, defaults to "structured_output"
	StrictMode  bool           // enforce the schema exactly (OpenAI structured outputs)
}

// CompletionResponse represents the LLM response.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
	Model        string
}

// Provider is the core abstraction over LLM backends.
type Provider interface {
	// Complete sends a completion request and returns the response text,
	// which is JSON when a schema was supplied.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Name returns the provider identifier.
	Name() string

	// SupportsJSONSchema returns true if the provider has native JSON mode.
	SupportsJSONSchema() bool
}

// Embedding is one embedding vector with its token cost.
type Embedding struct {
	Vector []float32
	Tokens int
}

// EmbeddingProvider generates text embeddings. Only OpenAI implements it;
// listings and queries embed through the same model regardless of which
// provider answers chat completions.
type EmbeddingProvider interface {
	// Embed generates one embedding.
	Embed(ctx context.Context, text string) (Embedding, error)

	// EmbedBatch generates embeddings for texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int
}

// ProviderConfig holds common configuration for providers.
type ProviderConfig struct {
	APIKey              string
	BaseURL             string // for OpenRouter or custom endpoints
	Model               string
	EmbeddingModel      string
	EmbeddingDimensions int
	MaxRetries          int
	Timeout             time.Duration
}

// DefaultProviderConfig returns sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
		MaxRetries:          3,
		Timeout:             60 * time.Second,
	}
}
