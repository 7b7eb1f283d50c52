package pipeline

import (
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/llm"
)

// Conversation history bounds. Trimming removes the oldest non-system
// messages first; system messages are never removed.
const (
	DefaultMaxMessages = 50
	DefaultMaxChars    = 32000
)

// ConversationContext holds the message history handed to the LLM on each
// generation. Safe for concurrent use.
type ConversationContext struct {
	mu          sync.Mutex
	messages    []llm.Message
	maxMessages int
	maxChars    int
}

// NewConversationContext creates a context bounded by maxMessages and
// maxChars. Zero or negative bounds fall back to the defaults. When
// systemPrompt is non-empty it becomes the permanent first message.
func NewConversationContext(systemPrompt string, maxMessages, maxChars int) *ConversationContext {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	c := &ConversationContext{maxMessages: maxMessages, maxChars: maxChars}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	return c
}

// AddUser appends a user message.
func (c *ConversationContext) AddUser(text string) {
	c.Append(llm.Message{Role: "user", Content: text})
}

// AddAssistant appends an assistant message, optionally carrying the tool
// calls the model requested.
func (c *ConversationContext) AddAssistant(text string, toolCalls []llm.ToolCall) {
	c.Append(llm.Message{Role: "assistant", Content: text, ToolCalls: toolCalls})
}

// AddToolResult appends the result of one executed tool call.
func (c *ConversationContext) AddToolResult(toolCallID, result string) {
	c.Append(llm.Message{Role: "tool", Content: result, ToolCallID: toolCallID})
}

// Append adds one message and trims the history back under its bounds.
func (c *ConversationContext) Append(msg llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.trim()
}

// Messages returns a copy of the current history.
func (c *ConversationContext) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the current message count.
func (c *ConversationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// UserMessages returns the text of every user message, oldest first.
func (c *ConversationContext) UserMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages {
		if m.Role == "user" {
			out = append(out, m.Content)
		}
	}
	return out
}

// trim drops the oldest non-system messages until both bounds hold. Called
// with the lock held.
func (c *ConversationContext) trim() {
	for len(c.messages) > c.maxMessages && c.dropOldest() {
	}
	for c.totalChars() > c.maxChars && c.dropOldest() {
	}
}

// dropOldest removes the oldest non-system message, reporting whether one
// was found.
func (c *ConversationContext) dropOldest() bool {
	for i, m := range c.messages {
		if m.Role != "system" {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (c *ConversationContext) totalChars() int {
	total := 0
	for _, m := range c.messages {
		total += len(m.Content)
	}
	return total
}
