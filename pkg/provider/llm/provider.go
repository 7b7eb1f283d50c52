// Package llm defines the Provider interface for streaming chat-completion
// backends used by the AI pipeline.
//
// A provider turns a conversation (messages plus optional tool definitions)
// into a stream of chunks. Text arrives as plain deltas; tool calls arrive as
// argument fragments that the consumer accumulates per ToolCallID until the
// final chunk. The final chunk carries the finish reason and, when the
// backend reports it, token usage.
package llm

import "context"

// Message is one entry in the conversation history.
//
// Role is one of "system", "user", "assistant", or "tool". A "tool" message
// answers the assistant tool call named by ToolCallID; an "assistant" message
// that requested tools carries them in ToolCalls.
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is one completed tool invocation requested by the model.
// Arguments is a JSON object string.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a tool the model may call. Parameters is a JSON
// Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// Chunk is one streamed fragment of a completion.
//
// Exactly one of three shapes applies: a text delta (Text non-empty), a
// tool-call fragment (ToolCallID set; ToolArguments accumulates across
// fragments with the same ToolCallID), or the final chunk (IsFinal true,
// carrying FinishReason, token counts when known, and Err when the stream
// failed mid-way).
type Chunk struct {
	Text string

	ToolCallID    string
	ToolName      string
	ToolArguments string

	IsFinal      bool
	FinishReason string
	InputTokens  int
	OutputTokens int
	Err          error
}

// Provider is the abstraction over any streaming chat-completion backend.
//
// StreamCompletion returns an error only when the stream cannot be started.
// Failures after that surface as a final chunk with Err set. The returned
// channel is always closed when the stream ends or ctx is cancelled.
type Provider interface {
	StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
}
