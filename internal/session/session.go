// Package session implements the interview orchestration core: the Session
// aggregate, its phase state machine, and the turn controller that drives one
// candidate-utterance-to-interviewer-reply exchange end to end.
//
// All async side effects (transcript writes, speech enqueues, rating updates)
// are gated by a monotonically increasing turn token. Beginning a new turn
// mints a fresh token; any callback still holding the old one becomes a
// no-op. This gives last-turn-wins semantics without cancelling in-flight
// network work.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/greenroom-ai/greenroom/internal/observe"
	"github.com/greenroom-ai/greenroom/internal/playback"
	"github.com/greenroom-ai/greenroom/internal/rating"
	"github.com/greenroom-ai/greenroom/pkg/biometric"
	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCountdown  Phase = "countdown"
	PhaseLive       Phase = "live"
	PhaseProcessing Phase = "processingTurn"
	PhaseCoding     Phase = "codingChallenge"
	PhaseFinished   Phase = "finished"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerCandidate   Speaker = "candidate"
	SpeakerInterviewer Speaker = "interviewer"
)

// TranscriptEntry is one line of the interview transcript. Entries are
// append-only except the current streaming interviewer entry, whose text is
// rewritten in place as tokens arrive.
type TranscriptEntry struct {
	TimeSec float64 `json:"time"`
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Config carries the per-interview setup.
type Config struct {
	// ID identifies the session towards the chat and transcription backends.
	ID string

	// ResumeText and JobText steer question selection on the backend.
	ResumeText string
	JobText    string

	// Persona selects the interviewer personality.
	Persona string

	// Countdown is how long the pre-interview countdown runs before the
	// session goes live. Zero means go live immediately.
	Countdown time.Duration

	// FinishGrace is the delay between the backend marking the interview
	// finished and the session actually finalizing, so trailing speech can
	// play out.
	FinishGrace time.Duration

	// MinFragmentLen is the sentence buffer length that must be exceeded
	// before terminal punctuation flushes a speech fragment.
	MinFragmentLen int

	// Rating tunes the difficulty engine.
	Rating rating.Params
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Countdown:      3 * time.Second,
		FinishGrace:    2 * time.Second,
		MinFragmentLen: 15,
		Rating:         rating.DefaultParams(),
	}
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSleep replaces the blocking sleep used for the countdown and the
// finish grace delay, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Session) { s.sleep = sleep }
}

// WithScheduler replaces the playback scheduler, for tests that assert on
// fragment flushing without a real renderer.
func WithScheduler(sched *playback.Scheduler) Option {
	return func(s *Session) { s.scheduler = sched }
}

// Session is the aggregate root for one interview. All state is guarded by
// mu; collaborator calls happen outside the lock.
type Session struct {
	cfg Config

	chat        chat.Provider
	transcriber transcribe.Provider
	scheduler   *playback.Scheduler
	sink        EventSink
	metrics     *observe.Metrics

	now   func() time.Time
	sleep func(time.Duration)

	mu        sync.Mutex
	phase     Phase
	startedAt time.Time

	token         int64
	questionIndex int

	transcript  []TranscriptEntry
	streamEntry int
	replyText   string
	sentenceBuf string
	spokenLen   int

	state     rating.State
	heuristic float64
	skipped   []string
	overlay   biometric.Overlay
}

// New builds a Session wired to its three collaborators. sink may be nil, in
// which case events are discarded.
func New(cfg Config, chatp chat.Provider, transcriber transcribe.Provider, renderer voice.Renderer, sink EventSink, opts ...Option) *Session {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.MinFragmentLen <= 0 {
		cfg.MinFragmentLen = 15
	}

	s := &Session{
		cfg:         cfg,
		chat:        chatp,
		transcriber: transcriber,
		sink:        sink,
		metrics:     observe.DefaultMetrics(),
		now:         time.Now,
		sleep:       time.Sleep,
		phase:       PhaseIdle,
		state:       rating.NewState(),
		streamEntry: -1,
	}
	s.scheduler = playback.New(renderer, sink.SpeechEnded)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Transcript returns a copy of the transcript so far.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Pressure returns the current display score and trend.
func (s *Session) Pressure() (float64, rating.Trend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PressureScore, s.state.Trend
}

// SkippedQuestions returns a copy of the questions the candidate skipped.
func (s *Session) SkippedQuestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.skipped))
	copy(out, s.skipped)
	return out
}

// Overlay returns the current biometric confidence overlay.
func (s *Session) Overlay() biometric.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// ApplyBiometric folds one inference event into the overlay.
func (s *Session) ApplyBiometric(ev biometric.Event) {
	s.mu.Lock()
	s.overlay = s.overlay.Fold(ev)
	o := s.overlay
	s.mu.Unlock()
	s.sink.OverlayChanged(o)
}

// Begin runs the countdown and takes the session live, then starts the intro
// turn so the interviewer opens the conversation. No-op unless the session
// is idle.
func (s *Session) Begin(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseCountdown
	s.mu.Unlock()
	s.sink.PhaseChanged(PhaseCountdown)

	go func() {
		if s.cfg.Countdown > 0 {
			s.sleep(s.cfg.Countdown)
		}

		s.mu.Lock()
		if s.phase != PhaseCountdown {
			s.mu.Unlock()
			return
		}
		s.phase = PhaseLive
		s.startedAt = s.now()
		s.mu.Unlock()
		s.sink.PhaseChanged(PhaseLive)

		// Intro turn: empty candidate text asks the backend to open with its
		// first question.
		s.beginTurn(ctx, turnTrigger{kind: triggerIntro})
	}()
}

// End finalizes the session immediately: any in-flight turn is invalidated
// and current speech is cut off.
func (s *Session) End() {
	s.mu.Lock()
	if s.phase == PhaseFinished {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFinished
	s.token++
	s.mu.Unlock()

	s.scheduler.HardStop()
	s.sink.PhaseChanged(PhaseFinished)
}

// elapsedLocked returns seconds since the session went live. Callers hold mu.
func (s *Session) elapsedLocked() float64 {
	if s.startedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.startedAt).Seconds()
}
