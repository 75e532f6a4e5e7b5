// Package mock provides a test double for the voice.Renderer interface.
//
// The mock lets tests control readiness, per-fragment durations, and
// injected errors, and records every call in order so scheduler tests can
// assert on sequencing.
package mock

import (
	"context"
	"sync"
	"time"
)

// Renderer is a mock implementation of voice.Renderer.
type Renderer struct {
	mu sync.Mutex

	// ReadyValue is returned from Ready. Defaults to false; set to true for
	// tests that expect fragments to play.
	ReadyValue bool

	// Durations holds per-fragment playback estimates returned from
	// EnqueueText in call order. Calls beyond the slice return DefaultDuration.
	Durations []time.Duration

	// DefaultDuration is returned when Durations is exhausted.
	DefaultDuration time.Duration

	// StartErr, EnqueueErr, EndErr inject errors into the corresponding calls.
	StartErr   error
	EnqueueErr error
	EndErr     error

	// Recorded calls.
	StartCalls    int
	EnqueueTexts  []string
	EndCalls      int
	HardStopCalls int
}

// StartSession implements voice.Renderer.
func (r *Renderer) StartSession(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.StartCalls++
	return nil
}

// EnqueueText implements voice.Renderer.
func (r *Renderer) EnqueueText(_ context.Context, text string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EnqueueErr != nil {
		return 0, r.EnqueueErr
	}
	n := len(r.EnqueueTexts)
	r.EnqueueTexts = append(r.EnqueueTexts, text)
	if n < len(r.Durations) {
		return r.Durations[n], nil
	}
	return r.DefaultDuration, nil
}

// EndSession implements voice.Renderer.
func (r *Renderer) EndSession(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EndErr != nil {
		return r.EndErr
	}
	r.EndCalls++
	return nil
}

// HardStop implements voice.Renderer.
func (r *Renderer) HardStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.HardStopCalls++
}

// Ready implements voice.Renderer.
func (r *Renderer) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ReadyValue
}

// SetReady flips the readiness flag; safe to call mid-test.
func (r *Renderer) SetReady(v bool) {
	r.mu.Lock()
	r.ReadyValue = v
	r.mu.Unlock()
}

// Snapshot returns copies of the recorded state for assertions.
func (r *Renderer) Snapshot() (starts int, texts []string, ends, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts = make([]string, len(r.EnqueueTexts))
	copy(texts, r.EnqueueTexts)
	return r.StartCalls, texts, r.EndCalls, r.HardStopCalls
}
