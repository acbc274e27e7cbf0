package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatRequest is one completion call. MaxTokens <= 0 leaves the bound to the provider.
type ChatRequest struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// StreamChunk is one element of a completion stream. A stream delivers
// deltas in order and ends with exactly one chunk that has Done set or Err
// non-nil, after which the channel is closed.
type StreamChunk struct {
	Delta string
	Done  bool
	Err   error
}

// AIServiceAdapter is the port for LLM chat.
type AIServiceAdapter interface {
	// Name is the provider label used in logs and metrics.
	Name() string

	// Chat returns the assistant text + usage as reported by the provider.
	Chat(ctx context.Context, req ChatRequest) (string, Usage, error)

	// ChatStream opens a new stream for every call. The error return covers
	// failures before the first delta; later failures arrive as a chunk.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}
