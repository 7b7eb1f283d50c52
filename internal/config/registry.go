package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/llm"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]func(StageConfig) (stt.Provider, error)
	llm map[string]func(StageConfig) (llm.Provider, error)
	tts map[string]func(StageConfig) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]func(StageConfig) (stt.Provider, error)),
		llm: make(map[string]func(StageConfig) (llm.Provider, error)),
		tts: make(map[string]func(StageConfig) (tts.Provider, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(StageConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(StageConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(StageConfig) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// stage.Provider. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(stage StageConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[stage.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, stage.Provider)
	}
	return factory(stage)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// stage.Provider.
func (r *Registry) CreateLLM(stage StageConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[stage.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, stage.Provider)
	}
	return factory(stage)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// stage.Provider.
func (r *Registry) CreateTTS(stage StageConfig) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[stage.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, stage.Provider)
	}
	return factory(stage)
}
