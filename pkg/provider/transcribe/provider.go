// Package transcribe defines the Provider interface for the utterance
// transcription backend.
//
// Unlike a live STT stream, the interview flow submits one recorded answer at
// a time: the candidate finishes speaking, the recording is uploaded, and a
// single transcript comes back. Implementations must be safe for concurrent
// use and must respect context cancellation.
package transcribe

import "context"

// Request is one recorded candidate answer.
type Request struct {
	// Audio is the recorded answer audio. Required.
	Audio []byte

	// AudioMIME is the container type of Audio (e.g. "audio/webm").
	AudioMIME string

	// Video is the optional synchronized camera recording, forwarded for
	// server-side biometric analysis.
	Video []byte

	// VideoMIME is the container type of Video.
	VideoMIME string

	// SessionID identifies the interview session.
	SessionID string

	// TimestampSec is seconds elapsed since the interview went live.
	TimestampSec float64
}

// Result holds the transcription outcome.
type Result struct {
	// Text is the transcript of the answer. May be empty when nothing
	// intelligible was said.
	Text string
}

// Provider is the abstraction over any transcription backend.
type Provider interface {
	// Transcribe uploads one recorded answer and returns its transcript.
	// Returns an error if the backend is unreachable or responds non-OK.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
