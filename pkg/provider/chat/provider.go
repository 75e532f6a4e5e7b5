// Package chat defines the Provider interface for the streamed interviewer
// reply backend.
//
// A chat provider receives the candidate's latest utterance together with the
// session context and returns the interviewer's next reply as a stream of
// token events terminated by exactly one done event. Token order within a
// turn is significant; implementations must deliver tokens in generation
// order and must always deliver the final event (or close the channel early
// on failure).
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamTurn must be closed by the implementation when the stream ends or
// the supplied context is cancelled.
package chat

import "context"

// Trend mirrors the session's difficulty trend for prompt context.
type Trend string

// TurnRequest carries the candidate input and session context for one turn.
type TurnRequest struct {
	// Text is the candidate's transcribed utterance. Empty for the intro turn
	// and synthetic for system-directed pivots (skip, easier question).
	Text string

	// QuestionIndex is the zero-based index of the question being answered.
	QuestionIndex int

	// SessionID identifies the interview session on the backend.
	SessionID string

	// TimestampSec is seconds elapsed since the interview went live.
	TimestampSec float64

	// ResumeText and JobText are the candidate's resume and the job
	// description, used to steer question selection.
	ResumeText string
	JobText    string

	// Persona selects the interviewer personality.
	Persona string

	// PressureScore and PressureTrend expose the current difficulty state so
	// the backend can calibrate the next question.
	PressureScore float64
	PressureTrend Trend

	// SuppressScoring marks system-directed turns (skip, easier question)
	// whose replies must not be scored.
	SuppressScoring bool
}

// TurnEvent is one event of the reply stream. Non-final events carry Token;
// the final event has Done set and carries the turn outcome fields.
type TurnEvent struct {
	// Token is the incremental reply text. Empty on the done event.
	Token string

	// Done marks the terminal event of the stream.
	Done bool

	// NextIndex is the question index the next turn should use.
	NextIndex int

	// CodingPhase signals that the session should switch to the coding
	// challenge phase.
	CodingPhase bool

	// QualityScore is the judge's quality for the answered question in
	// [0, 1]. Nil when the backend did not score the turn.
	QualityScore *float64

	// SkipScoring echoes that this turn must not feed the rating engine.
	SkipScoring bool

	// Finished signals the backend has concluded the interview.
	Finished bool
}

// Provider is the abstraction over any interviewer reply backend.
type Provider interface {
	// StreamTurn sends req and returns a read-only channel emitting TurnEvent
	// values. The channel is closed by the implementation after the done
	// event, on stream failure, or when ctx is cancelled. A non-nil error is
	// returned only for failures that prevent the stream from starting.
	//
	// Callers must drain the channel to avoid goroutine leaks.
	StreamTurn(ctx context.Context, req TurnRequest) (<-chan TurnEvent, error)
}
