// Package mock provides a test double for the chat.Provider interface.
//
// Set Events to script the stream for the next StreamTurn call, or Script to
// vary events per call. Call records are appended under an internal mutex and
// can be read once the stream consumer has finished.
package mock

import (
	"context"
	"sync"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
)

// StreamCall records a single invocation of StreamTurn.
type StreamCall struct {
	// Ctx is the context passed to StreamTurn.
	Ctx context.Context
	// Req is the TurnRequest passed to StreamTurn.
	Req chat.TurnRequest
}

// Provider is a mock implementation of chat.Provider.
// Zero values cause StreamTurn to return an immediately closed channel.
type Provider struct {
	mu sync.Mutex

	// Events is the sequence emitted on every StreamTurn call when Script is
	// nil. All events are sent before the channel is closed.
	Events []chat.TurnEvent

	// Script, when non-nil, supplies the events for the n-th call (zero
	// based). Calls beyond the script fall back to Events.
	Script [][]chat.TurnEvent

	// Err, if non-nil, is returned from StreamTurn instead of a channel.
	Err error

	// Gate, if non-nil, is received from before any event is sent; it lets a
	// test hold a stream open while it races a newer turn against it.
	Gate <-chan struct{}

	// StreamCalls records every invocation in order.
	StreamCalls []StreamCall
}

// StreamTurn implements chat.Provider.
func (p *Provider) StreamTurn(ctx context.Context, req chat.TurnRequest) (<-chan chat.TurnEvent, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	n := len(p.StreamCalls) - 1
	events := p.Events
	if p.Script != nil && n < len(p.Script) {
		events = p.Script[n]
	}
	err := p.Err
	gate := p.Gate
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan chat.TurnEvent, len(events)+1)
	go func() {
		defer close(ch)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Calls returns a copy of the recorded StreamTurn invocations.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.StreamCalls))
	copy(out, p.StreamCalls)
	return out
}
