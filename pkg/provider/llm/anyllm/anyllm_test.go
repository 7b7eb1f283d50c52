package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxbridge/voxbridge/pkg/provider/llm"
)

func TestConvertMessage_Basic(t *testing.T) {
	msg := convertMessage(llm.Message{Role: "user", Content: "hello"})
	if msg.Role != "user" || msg.Content != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	msg := convertMessage(llm.Message{
		Role:       "tool",
		Content:    `{"ok":true}`,
		ToolCallID: "call_9",
	})
	if msg.ToolCallID != "call_9" {
		t.Errorf("tool call ID = %q, want call_9", msg.ToolCallID)
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	msg := convertMessage(llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "transfer_call", Arguments: `{"target":"support"}`},
		},
	})
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool call count = %d, want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Function.Name != "transfer_call" || tc.Function.Arguments != `{"target":"support"}` {
		t.Errorf("unexpected function: %+v", tc.Function)
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.Request{
		Messages:    []llm.Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   128,
		Tools: []llm.ToolDefinition{{
			Name:        "end_call",
			Description: "hang up",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	if params.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Errorf("message count = %d, want 2", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("max tokens = %v, want 128", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "end_call" {
		t.Errorf("unexpected tools: %+v", params.Tools)
	}
}

func TestBuildParams_ZeroOptionals(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if params.Temperature != nil {
		t.Error("zero temperature should stay unset")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens should stay unset")
	}
}

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("empty provider name should fail")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Fatal("empty model should fail")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fortune-teller", "crystal-ball-9000"); err == nil {
		t.Fatal("unsupported provider should fail")
	}
}

func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", p.model)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cases := []struct {
		name string
		ctor func() (*Provider, error)
	}{
		{"anthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"ollama", func() (*Provider, error) {
			return NewOllama("llama3.2")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.ctor(); err != nil {
				t.Errorf("constructor failed: %v", err)
			}
		})
	}
}
