// Package mock provides a test double for the transcribe.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req transcribe.Request
}

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Transcribe when Err is nil. A nil Result is
	// returned as an empty transcript.
	Result *transcribe.Result

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Gate, if non-nil, is received from before the call returns; it lets a
	// test hold a transcription in flight while racing another operation
	// against it.
	Gate <-chan struct{}

	// Calls records every invocation in order.
	Calls []Call
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	res, err := p.Result, p.Err
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if res == nil {
		return &transcribe.Result{}, nil
	}
	out := *res
	return &out, nil
}

// CallCount returns the number of recorded invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
