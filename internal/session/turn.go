package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/greenroom-ai/greenroom/internal/playback"
	"github.com/greenroom-ai/greenroom/internal/rating"
	"github.com/greenroom-ai/greenroom/internal/score"
	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
)

// Synthetic candidate inputs for system-directed turns. The backend treats
// them as steering instructions, not as answers to score.
const (
	skipPrompt = "[SYSTEM: The user has skipped this question. Please pivot and ask a different, relevant interview question instead.]"

	easierPrompt = "[SYSTEM: The user requested an easier question. Please ask a noticeably simpler question on a related topic.]"

	codingPrompt = "[SYSTEM: Transition the interview into the coding challenge phase now and present a suitable coding problem.]"
)

// errorMarker is appended inline to the streaming transcript entry when the
// reply transport fails, so the candidate sees why the interviewer stopped.
const errorMarker = "[ERROR: connection to the interviewer was lost. Please try again.]"

// Trigger kinds, also used as metric attributes.
const (
	triggerIntro     = "intro"
	triggerUtterance = "utterance"
	triggerSkip      = "skip"
	triggerEasier    = "easier"
	triggerCoding    = "coding"
)

type turnTrigger struct {
	kind     string
	text     string
	suppress bool
}

// SubmitUtterance transcribes the candidate's recording, scores it with the
// text heuristic and starts the reply turn. The session must be live or in
// the coding phase. A transcription result that lands after the session ended
// or was otherwise superseded is discarded.
func (s *Session) SubmitUtterance(ctx context.Context, audio []byte, audioMIME string, video []byte, videoMIME string) error {
	s.mu.Lock()
	prev := s.phase
	if prev != PhaseLive && prev != PhaseCoding {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot accept an utterance in phase %q", prev)
	}
	s.phase = PhaseProcessing
	tok := s.token
	ts := s.elapsedLocked()
	s.mu.Unlock()
	s.sink.PhaseChanged(PhaseProcessing)

	start := s.now()
	res, err := s.transcriber.Transcribe(ctx, transcribe.Request{
		Audio:        audio,
		AudioMIME:    audioMIME,
		Video:        video,
		VideoMIME:    videoMIME,
		SessionID:    s.cfg.ID,
		TimestampSec: ts,
	})
	s.metrics.TranscribeDuration.Record(ctx, s.now().Sub(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "transcribe", "transport")
		s.restorePhase(prev)
		s.sink.Alert("Could not process your answer. Please try again.")
		return fmt.Errorf("session: transcribe utterance: %w", err)
	}

	text := res.Text
	s.mu.Lock()
	// End or a newer turn may have taken over while transcription was in
	// flight; the phase must never leave finished once it got there.
	if tok != s.token || s.phase != PhaseProcessing {
		s.mu.Unlock()
		s.metrics.RecordStaleDiscard(ctx, "utterance")
		return nil
	}
	s.heuristic = score.Normalized(text)
	idx := len(s.transcript)
	entry := TranscriptEntry{TimeSec: ts, Speaker: SpeakerCandidate, Text: text}
	s.transcript = append(s.transcript, entry)
	s.phase = prev
	s.mu.Unlock()
	s.sink.TranscriptAppended(idx, entry)
	s.sink.PhaseChanged(prev)

	s.beginTurn(ctx, turnTrigger{kind: triggerUtterance, text: text})
	return nil
}

// SkipCurrentQuestion records the skip and pivots to a fresh question via a
// system-directed turn whose scoring is suppressed.
func (s *Session) SkipCurrentQuestion(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseLive && s.phase != PhaseCoding {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot skip in phase %q", s.phase)
	}
	if q := s.currentQuestionLocked(); q != "" {
		s.skipped = append(s.skipped, q)
	}
	s.mu.Unlock()

	s.beginTurn(ctx, turnTrigger{kind: triggerSkip, text: skipPrompt, suppress: true})
	return nil
}

// RequestEasierQuestion lowers the difficulty opponent by one step and asks
// the backend for a simpler question. Scoring is suppressed; the candidate's
// rating itself is untouched.
func (s *Session) RequestEasierQuestion(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseLive && s.phase != PhaseCoding {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot ease in phase %q", s.phase)
	}
	s.state = rating.Ease(s.state, s.cfg.Rating)
	s.mu.Unlock()

	s.beginTurn(ctx, turnTrigger{kind: triggerEasier, text: easierPrompt, suppress: true})
	return nil
}

// ForceCodingChallenge switches to the coding phase on the candidate's
// request and asks the backend for a coding problem.
func (s *Session) ForceCodingChallenge(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseLive {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot start coding challenge in phase %q", s.phase)
	}
	s.phase = PhaseCoding
	s.mu.Unlock()
	s.sink.PhaseChanged(PhaseCoding)

	s.beginTurn(ctx, turnTrigger{kind: triggerCoding, text: codingPrompt, suppress: true})
	return nil
}

// beginTurn mints a new turn token, hard-stops current speech, opens the
// streaming interviewer entry and starts the reply stream. Everything the
// stream produces is applied through the token gate.
func (s *Session) beginTurn(ctx context.Context, trig turnTrigger) {
	s.mu.Lock()
	s.token++
	tok := s.token
	s.replyText = ""
	s.sentenceBuf = ""
	s.spokenLen = 0

	idx := len(s.transcript)
	entry := TranscriptEntry{TimeSec: s.elapsedLocked(), Speaker: SpeakerInterviewer}
	s.transcript = append(s.transcript, entry)
	s.streamEntry = idx

	req := chat.TurnRequest{
		Text:            trig.text,
		QuestionIndex:   s.questionIndex,
		SessionID:       s.cfg.ID,
		TimestampSec:    s.elapsedLocked(),
		ResumeText:      s.cfg.ResumeText,
		JobText:         s.cfg.JobText,
		Persona:         s.cfg.Persona,
		PressureScore:   s.state.PressureScore,
		PressureTrend:   chat.Trend(s.state.Trend),
		SuppressScoring: trig.suppress,
	}
	s.mu.Unlock()

	s.sink.TranscriptAppended(idx, entry)
	s.scheduler.HardStop()

	events, err := s.chat.StreamTurn(ctx, req)
	if err != nil {
		s.failTurn(ctx, tok, trig, err)
		return
	}
	go s.pumpReply(ctx, tok, trig, events)
}

// pumpReply consumes the reply stream. A stream that closes without a done
// event is a transport failure.
func (s *Session) pumpReply(ctx context.Context, tok int64, trig turnTrigger, events <-chan chat.TurnEvent) {
	start := s.now()
	sawDone := false
	for ev := range events {
		if ev.Done {
			sawDone = true
			s.metrics.ReplyDuration.Record(ctx, s.now().Sub(start).Seconds())
			s.onReplyDone(ctx, tok, trig, ev)
			continue
		}
		s.onReplyToken(ctx, tok, ev.Token)
	}
	if !sawDone {
		s.failTurn(ctx, tok, trig, fmt.Errorf("session: reply stream closed before the final event"))
	}
}

// onReplyToken applies one streamed token: it extends the transcript entry
// (annotations stripped for display) and feeds completed sentences to the
// playback scheduler. Stale tokens are discarded.
func (s *Session) onReplyToken(ctx context.Context, tok int64, text string) {
	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		s.metrics.RecordStaleDiscard(ctx, "token")
		return
	}

	s.replyText += text
	stripped := chat.StripAnnotations(s.replyText)
	idx := s.streamEntry
	s.transcript[idx].Text = stripped

	frags := s.feedSpeechLocked(chat.SafeSpoken(stripped))
	// The playback epoch is captured while the token still holds; a new turn's
	// hard stop in between invalidates these fragments at the scheduler.
	gen := s.scheduler.Generation()
	s.mu.Unlock()

	s.sink.TranscriptUpdated(idx, stripped)
	for _, f := range frags {
		s.scheduler.Enqueue(ctx, gen, playback.Fragment{Text: f})
	}
}

// onReplyDone finalizes the turn on its own token: it flushes trailing
// speech, applies phase switches, feeds the blended quality into the rating
// engine unless scoring is suppressed, and signals end of turn to the
// scheduler.
func (s *Session) onReplyDone(ctx context.Context, tok int64, trig turnTrigger, ev chat.TurnEvent) {
	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		s.metrics.RecordStaleDiscard(ctx, "done")
		return
	}

	s.questionIndex = ev.NextIndex

	stripped := chat.StripAnnotations(s.replyText)
	idx := s.streamEntry
	s.transcript[idx].Text = stripped

	// Flush whatever never reached terminal punctuation so nothing spoken is
	// lost, including the held-back tail of the safe-spoken view.
	frags := s.feedSpeechLocked(stripped)
	if tail := strings.TrimSpace(s.sentenceBuf); tail != "" {
		frags = append(frags, tail)
	}
	s.sentenceBuf = ""

	codingSwitch := ev.CodingPhase && s.phase != PhaseCoding && s.phase != PhaseFinished
	if codingSwitch {
		s.phase = PhaseCoding
	}

	scored := false
	if !trig.suppress && !ev.SkipScoring && ev.QualityScore != nil {
		var upd rating.Update
		s.state, upd = rating.Apply(s.state, s.cfg.Rating, *ev.QualityScore, s.heuristic)
		scored = true
		slog.Debug("session: turn scored",
			"session_id", s.cfg.ID,
			"delta", upd.Delta,
			"pressure", s.state.PressureScore,
			"trend", s.state.Trend)
	}
	pressure := s.state.PressureScore
	trend := s.state.Trend
	finished := ev.Finished
	gen := s.scheduler.Generation()
	s.mu.Unlock()

	s.sink.TranscriptUpdated(idx, stripped)
	if codingSwitch {
		s.sink.PhaseChanged(PhaseCoding)
	}
	if scored {
		s.sink.PressureChanged(pressure, trend)
	}

	for _, f := range frags {
		s.scheduler.Enqueue(ctx, gen, playback.Fragment{Text: f})
	}
	s.scheduler.SignalEndOfTurn(ctx, gen)
	s.metrics.RecordTurn(ctx, trig.kind, "ok")

	if finished {
		go func() {
			s.sleep(s.cfg.FinishGrace)
			s.finish(tok)
		}()
	}
}

// feedSpeechLocked advances the spoken cursor over the stripped reply text
// and cuts completed sentences out of the accumulation buffer. A sentence
// completes on terminal punctuation once the buffer is past the minimum
// fragment length, counted in runes so multi-byte text does not flush early.
// Callers hold mu.
func (s *Session) feedSpeechLocked(safe string) []string {
	if len(safe) <= s.spokenLen {
		return nil
	}
	delta := safe[s.spokenLen:]
	s.spokenLen = len(safe)

	var frags []string
	var buf strings.Builder
	buf.WriteString(s.sentenceBuf)
	runes := utf8.RuneCountInString(s.sentenceBuf)
	for _, r := range delta {
		buf.WriteRune(r)
		runes++
		if terminalPunct(r) && runes > s.cfg.MinFragmentLen {
			frags = append(frags, buf.String())
			buf.Reset()
			runes = 0
		}
	}
	s.sentenceBuf = buf.String()
	return frags
}

func terminalPunct(r rune) bool {
	switch r {
	case ',', '.', '!', '?', ';', ':', '\n':
		return true
	}
	return false
}

// failTurn handles a transport failure of the reply stream: the error marker
// becomes visible in the transcript, the candidate gets a transient notice,
// and the session stays interactive so they can retry.
func (s *Session) failTurn(ctx context.Context, tok int64, trig turnTrigger, err error) {
	slog.Error("session: reply stream failed", "session_id", s.cfg.ID, "err", err)
	s.metrics.RecordProviderError(ctx, "chat", "transport")
	s.metrics.RecordTurn(ctx, trig.kind, "error")

	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		return
	}
	idx := s.streamEntry
	text := s.transcript[idx].Text
	if text != "" && !strings.HasSuffix(text, " ") {
		text += " "
	}
	text += errorMarker
	s.transcript[idx].Text = text
	gen := s.scheduler.Generation()
	s.mu.Unlock()

	s.sink.TranscriptUpdated(idx, text)
	s.sink.Alert("The interviewer dropped out for a moment. Please try again.")
	s.scheduler.SignalEndOfTurn(ctx, gen)
}

// finish moves the session to its terminal phase after the grace delay,
// unless a newer turn superseded the finishing one.
func (s *Session) finish(tok int64) {
	s.mu.Lock()
	if tok != s.token || s.phase == PhaseFinished {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFinished
	s.mu.Unlock()
	s.sink.PhaseChanged(PhaseFinished)
}

// restorePhase puts the phase back after a failed processing step.
func (s *Session) restorePhase(p Phase) {
	s.mu.Lock()
	if s.phase == PhaseProcessing {
		s.phase = p
	}
	p = s.phase
	s.mu.Unlock()
	s.sink.PhaseChanged(p)
}

// currentQuestionLocked returns the text of the most recent non-empty
// interviewer entry. Callers hold mu.
func (s *Session) currentQuestionLocked() string {
	for i := len(s.transcript) - 1; i >= 0; i-- {
		e := s.transcript[i]
		if e.Speaker == SpeakerInterviewer && strings.TrimSpace(e.Text) != "" {
			return e.Text
		}
	}
	return ""
}
