package pipeline

import (
	"fmt"
	"strings"
	"testing"
)

func TestSystemPromptIsFirstMessage(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("You are a helpful receptionist.", 0, 0)
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMessageCountBound(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("system prompt", 5, 0)
	for i := 0; i < 20; i++ {
		c.AddUser(fmt.Sprintf("message %d", i))
	}
	if got := c.Len(); got != 5 {
		t.Fatalf("message count = %d, want 5", got)
	}
	msgs := c.Messages()
	if msgs[0].Role != "system" {
		t.Error("system message was trimmed")
	}
	if msgs[len(msgs)-1].Content != "message 19" {
		t.Errorf("newest message = %q, want %q", msgs[len(msgs)-1].Content, "message 19")
	}
}

func TestCharacterBound(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("sys", 0, 100)
	big := strings.Repeat("x", 80)
	c.AddUser(big)
	c.AddUser(big)

	msgs := c.Messages()
	if msgs[0].Role != "system" {
		t.Fatal("system message was trimmed")
	}
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	if total > 100 {
		t.Errorf("total chars = %d, want <= 100", total)
	}
	// The newer user message survives.
	if msgs[len(msgs)-1].Content != big {
		t.Error("newest message was trimmed instead of oldest")
	}
}

func TestSystemNeverTrimmedEvenWhenOversized(t *testing.T) {
	t.Parallel()

	c := NewConversationContext(strings.Repeat("s", 200), 0, 100)
	c.AddUser("hello")
	msgs := c.Messages()
	if msgs[0].Role != "system" {
		t.Fatal("system message must survive trimming")
	}
}

func TestToolMessages(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("", 0, 0)
	c.AddUser("look up my account")
	c.AddAssistant("", nil)
	c.AddToolResult("call_1", `{"balance":42}`)

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("message count = %d, want 3", len(msgs))
	}
	last := msgs[2]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", last)
	}
}

func TestUserMessages(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("sys", 0, 0)
	c.AddUser("one")
	c.AddAssistant("reply", nil)
	c.AddUser("two")

	got := c.UserMessages()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("user messages = %v", got)
	}
}
