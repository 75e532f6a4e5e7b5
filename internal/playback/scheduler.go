// Package playback serializes interviewer speech fragments into one
// continuous spoken performance on an external voice renderer.
//
// Fragments arrive sentence-by-sentence while the reply is still streaming.
// The scheduler overlaps synthesis of the next fragment with playback of the
// current one and supports hard cancellation when a new turn preempts the
// old one.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/greenroom-ai/greenroom/internal/observe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultPollBudget     = 100
	defaultTrailingBuffer = 500 * time.Millisecond
)

// Fragment is one unit of text handed to the renderer. Never mutated after
// creation.
type Fragment struct {
	Text string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep replaces the blocking sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithReadinessPolling tunes the bounded wait for the renderer to report
// itself ready before each fragment.
func WithReadinessPolling(budget int, interval time.Duration) Option {
	return func(s *Scheduler) {
		s.pollBudget = budget
		s.pollInterval = interval
	}
}

// WithTrailingBuffer sets the delay past the estimated end of audio before
// the playback session is closed, so the final word is not clipped.
func WithTrailingBuffer(d time.Duration) Option {
	return func(s *Scheduler) { s.trailing = d }
}

// WithMetrics replaces the metrics instance, for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns a FIFO of fragments and a single logical consume loop.
// All state transitions go through its operations; nothing else reaches in.
type Scheduler struct {
	renderer   voice.Renderer
	onComplete func()
	metrics    *observe.Metrics

	now   func() time.Time
	sleep func(time.Duration)

	pollInterval time.Duration
	pollBudget   int
	trailing     time.Duration

	mu          sync.Mutex
	queue       []Fragment
	playing     bool
	streamOpen  bool
	turnEnded   bool
	finishing   bool
	expectedEnd time.Time
	generation  uint64
}

// New builds a Scheduler. onComplete fires once per turn after the trailing
// buffer has elapsed and the playback session is closed; it may be nil.
func New(renderer voice.Renderer, onComplete func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		renderer:     renderer,
		onComplete:   onComplete,
		metrics:      observe.DefaultMetrics(),
		now:          time.Now,
		sleep:        time.Sleep,
		pollInterval: defaultPollInterval,
		pollBudget:   defaultPollBudget,
		trailing:     defaultTrailingBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generation returns the current cancellation epoch. HardStop advances it.
// Callers that validate work outside the scheduler's lock capture the epoch
// during validation and pass it back in, so a hard stop landing between the
// check and the call rejects the stale operation.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Enqueue pushes a fragment and restarts the consume loop if it has gone
// idle. A fragment carrying a superseded generation is discarded, and
// enqueueing after the loop drained must never append to a dead queue.
func (s *Scheduler) Enqueue(ctx context.Context, gen uint64, frag Fragment) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, frag)
	start := !s.playing
	if start {
		s.playing = true
	}
	s.mu.Unlock()

	if start {
		go s.consume(ctx, gen)
	}
}

// SignalEndOfTurn marks that no more fragments are coming this turn.
// Idempotent; a superseded generation is ignored. If the queue already
// drained and nothing is playing, teardown begins immediately.
func (s *Scheduler) SignalEndOfTurn(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.turnEnded {
		s.mu.Unlock()
		return
	}
	s.turnEnded = true
	idle := !s.playing && len(s.queue) == 0
	s.mu.Unlock()

	if idle {
		go s.finishStream(ctx, gen)
	}
}

// HardStop clears the queue, resets all flags and tells the renderer to
// discard whatever it was playing. Any in-flight consume loop or teardown
// becomes a no-op. Used whenever a new turn begins so stale speech never
// overlaps new speech.
func (s *Scheduler) HardStop() {
	s.mu.Lock()
	s.generation++
	s.queue = nil
	s.playing = false
	s.streamOpen = false
	s.turnEnded = false
	s.finishing = false
	s.expectedEnd = time.Time{}
	s.mu.Unlock()

	s.renderer.HardStop()
}

// consume pops fragments one at a time, pipelining synthesis against
// playback: it advances the expected end time by each fragment's estimated
// duration and immediately moves on rather than waiting for audio to finish.
func (s *Scheduler) consume(ctx context.Context, gen uint64) {
	for {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.playing = false
			ended := s.turnEnded
			s.mu.Unlock()
			if ended {
				s.finishStream(ctx, gen)
			}
			return
		}
		frag := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if !s.awaitReady(gen) {
			s.mu.Lock()
			stale := s.generation != gen
			s.mu.Unlock()
			if stale {
				return
			}
			s.metrics.DroppedFragments.Add(ctx, 1)
			slog.Warn("playback: renderer never ready, dropping fragment",
				"len", len(frag.Text))
			continue
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		open := s.streamOpen
		s.mu.Unlock()

		if !open {
			if err := s.renderer.StartSession(ctx); err != nil {
				slog.Error("playback: open session", "err", err)
				continue
			}
			s.mu.Lock()
			if s.generation != gen {
				s.mu.Unlock()
				return
			}
			s.streamOpen = true
			s.expectedEnd = s.now()
			s.mu.Unlock()
		}

		synthStart := s.now()
		dur, err := s.renderer.EnqueueText(ctx, frag.Text)
		if err != nil {
			slog.Error("playback: synthesize fragment", "err", err)
			continue
		}
		s.metrics.SynthesisDuration.Record(ctx, s.now().Sub(synthStart).Seconds())

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		base := s.expectedEnd
		if now := s.now(); now.After(base) {
			base = now
		}
		s.expectedEnd = base.Add(dur)
		s.mu.Unlock()
	}
}

// awaitReady blocks until the renderer reports ready, up to the poll budget.
// Fails open: the caller drops the fragment and keeps going.
func (s *Scheduler) awaitReady(gen uint64) bool {
	for i := 0; i < s.pollBudget; i++ {
		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if stale {
			return false
		}
		if s.renderer.Ready() {
			return true
		}
		s.sleep(s.pollInterval)
	}
	return false
}

// finishStream closes out the turn. Guarded against re-entry. If a playback
// session was opened it waits until the estimated end of audio plus the
// trailing buffer before closing, otherwise it completes immediately.
func (s *Scheduler) finishStream(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.finishing || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.finishing = true
	opened := s.streamOpen
	end := s.expectedEnd
	s.mu.Unlock()

	if opened {
		if delay := end.Sub(s.now()) + s.trailing; delay > 0 {
			s.sleep(delay)
		}

		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if stale {
			return
		}
		if err := s.renderer.EndSession(ctx); err != nil {
			slog.Error("playback: close session", "err", err)
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.streamOpen = false
	s.turnEnded = false
	s.finishing = false
	s.expectedEnd = time.Time{}
	cb := s.onComplete
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}
