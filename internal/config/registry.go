package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// collaborator type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	chat       map[string]func(ProviderEntry) (chat.Provider, error)
	transcribe map[string]func(ProviderEntry) (transcribe.Provider, error)
	voice      map[string]func(ProviderEntry, voice.AudioSink) (voice.Renderer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chat:       make(map[string]func(ProviderEntry) (chat.Provider, error)),
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		voice:      make(map[string]func(ProviderEntry, voice.AudioSink) (voice.Renderer, error)),
	}
}

// RegisterChat registers a chat provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// RegisterTranscribe registers a transcription provider factory under name.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// RegisterVoice registers a voice renderer factory under name. The factory
// receives the sink that will consume the synthesized audio; renderers are
// constructed per interview connection.
func (r *Registry) RegisterVoice(name string, factory func(ProviderEntry, voice.AudioSink) (voice.Renderer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voice[name] = factory
}

// CreateChat instantiates a chat provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranscribe instantiates a transcription provider using the factory
// registered under entry.Name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcribe/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVoice instantiates a voice renderer using the factory registered
// under entry.Name, wiring sink as the audio destination.
func (r *Registry) CreateVoice(entry ProviderEntry, sink voice.AudioSink) (voice.Renderer, error) {
	r.mu.RLock()
	factory, ok := r.voice[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voice/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, sink)
}
