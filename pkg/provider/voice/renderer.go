// Package voice defines the Renderer interface for the speech output
// surface: the component that turns text fragments into spoken, lip-synced
// audio for the candidate.
//
// A renderer session corresponds to one continuous interviewer utterance.
// EnqueueText returns an estimated playback duration so the playback
// scheduler can overlap synthesis of the next fragment with playback of the
// current one and still know when the whole performance ends.
//
// Implementations must be safe for concurrent use.
package voice

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady is returned by EnqueueText when the renderer has no capacity to
// accept speech (e.g. the output surface is disconnected). The scheduler
// treats speech as best effort and drops the fragment.
var ErrNotReady = errors.New("voice: renderer not ready")

// Profile describes the interviewer voice used for synthesis.
type Profile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Stability and SimilarityBoost tune synthesis expressiveness where the
	// provider supports it.
	Stability       float64
	SimilarityBoost float64
}

// AudioSink receives synthesized PCM chunks in playback order. Speak is
// called once per fragment; Flush is called when the playback session ends
// and Discard when it is hard-stopped.
type AudioSink interface {
	Speak(text string, pcm []byte, duration time.Duration)
	Flush()
	Discard()
}

// Renderer is the abstraction over the speech output surface.
type Renderer interface {
	// StartSession opens a playback session for one continuous utterance.
	StartSession(ctx context.Context) error

	// EnqueueText synthesizes one fragment and queues it for playback,
	// returning the estimated playback duration. The call may return before
	// playback of the fragment has finished.
	EnqueueText(ctx context.Context, text string) (time.Duration, error)

	// EndSession closes the playback session after queued audio has been
	// scheduled. Idempotent.
	EndSession(ctx context.Context) error

	// HardStop immediately discards queued and playing audio. Used when a new
	// turn begins so stale speech never overlaps new speech.
	HardStop()

	// Ready reports whether the renderer can currently accept fragments.
	Ready() bool
}
