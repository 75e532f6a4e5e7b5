package resilience

import (
	"context"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
)

// ChatFallback implements [chat.Provider] with automatic failover across
// multiple interviewer backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback is
// tried.
type ChatFallback struct {
	group *FallbackGroup[chat.Provider]
}

// Compile-time interface assertion.
var _ chat.Provider = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred backend.
func NewChatFallback(primary chat.Provider, primaryName string, cfg FallbackConfig) *ChatFallback {
	return &ChatFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional chat provider as a fallback.
func (f *ChatFallback) AddFallback(name string, provider chat.Provider) {
	f.group.AddFallback(name, provider)
}

// StreamTurn opens the reply stream on the first healthy provider. Note: only
// the initial connection attempt is covered by failover; once a stream is
// established, mid-stream errors are the caller's responsibility.
func (f *ChatFallback) StreamTurn(ctx context.Context, req chat.TurnRequest) (<-chan chat.TurnEvent, error) {
	return ExecuteWithResult(f.group, func(p chat.Provider) (<-chan chat.TurnEvent, error) {
		return p.StreamTurn(ctx, req)
	})
}
