// Package mock provides an in-memory llm.Provider for tests. Each call to
// StreamCompletion replays the next scripted chunk sequence and records the
// request it was given.
package mock

import (
	"context"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/llm"
)

// Provider implements llm.Provider.
type Provider struct {
	mu       sync.Mutex
	scripts  [][]llm.Chunk
	requests []llm.Request

	// StartErr, when set, makes StreamCompletion fail.
	StartErr error
}

// New creates an empty mock provider. Script responses with Respond.
func New() *Provider {
	return &Provider{}
}

// Respond queues one streamed response made of the given chunks. A final
// chunk is appended automatically if the script does not end with one.
func (p *Provider) Respond(chunks ...llm.Chunk) {
	if len(chunks) == 0 || !chunks[len(chunks)-1].IsFinal {
		chunks = append(chunks, llm.Chunk{IsFinal: true, FinishReason: "stop"})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, chunks)
}

// RespondText queues a response that streams the given text word-group-wise
// as a single delta and finishes with "stop".
func (p *Provider) RespondText(text string) {
	p.Respond(llm.Chunk{Text: text})
}

// RespondToolCall queues a response containing one tool call.
func (p *Provider) RespondToolCall(id, name, arguments string) {
	p.Respond(
		llm.Chunk{ToolCallID: id, ToolName: name, ToolArguments: arguments},
		llm.Chunk{IsFinal: true, FinishReason: "tool_calls"},
	)
}

// StreamCompletion implements llm.Provider. It replays the next script, or an
// empty completion when no script is queued.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	if p.StartErr != nil {
		p.mu.Unlock()
		return nil, p.StartErr
	}
	p.requests = append(p.requests, req)
	var script []llm.Chunk
	if len(p.scripts) > 0 {
		script = p.scripts[0]
		p.scripts = p.scripts[1:]
	} else {
		script = []llm.Chunk{{IsFinal: true, FinishReason: "stop"}}
	}
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(script))
	go func() {
		defer close(ch)
		for _, c := range script {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Requests returns every request seen so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// LastRequest returns the most recent request, or a zero Request when none
// was made.
func (p *Provider) LastRequest() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return llm.Request{}
	}
	return p.requests[len(p.requests)-1]
}
