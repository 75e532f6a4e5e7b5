package session

import (
	"github.com/greenroom-ai/greenroom/internal/rating"
	"github.com/greenroom-ai/greenroom/pkg/biometric"
)

// EventSink receives state changes the rest of the application renders.
// Implementations must be fast and non-blocking; the gateway fans these out
// to the connected client. All methods may be called from multiple
// goroutines.
type EventSink interface {
	// PhaseChanged fires on every session phase transition.
	PhaseChanged(phase Phase)

	// TranscriptAppended fires when a new transcript entry is created.
	TranscriptAppended(index int, entry TranscriptEntry)

	// TranscriptUpdated fires while the current interviewer entry streams;
	// text is the full accumulated entry text, annotations already stripped.
	TranscriptUpdated(index int, text string)

	// PressureChanged fires after a scored turn updates the rating state.
	PressureChanged(score float64, trend rating.Trend)

	// OverlayChanged fires when a biometric inference event updates the
	// confidence overlay.
	OverlayChanged(o biometric.Overlay)

	// Alert carries a transient user-facing notice, e.g. a failed turn the
	// candidate should retry.
	Alert(message string)

	// SpeechEnded fires when the playback scheduler finishes a turn's audio.
	SpeechEnded()
}

// NopSink discards all events. Useful as a default and in tests that do not
// assert on notifications.
type NopSink struct{}

func (NopSink) PhaseChanged(Phase)                      {}
func (NopSink) TranscriptAppended(int, TranscriptEntry) {}
func (NopSink) TranscriptUpdated(int, string)           {}
func (NopSink) PressureChanged(float64, rating.Trend)   {}
func (NopSink) OverlayChanged(biometric.Overlay)        {}
func (NopSink) Alert(string)                            {}
func (NopSink) SpeechEnded()                            {}

var _ EventSink = NopSink{}
