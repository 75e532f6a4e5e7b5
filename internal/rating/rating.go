// Package rating implements the adaptive difficulty engine.
//
// The engine models one interview as a sequence of rated pairings between the
// candidate and a virtual "difficulty opponent". Each scored turn feeds one
// quality observation into an Elo-style update: the candidate's rating moves
// toward or away from the opponent's, the opponent rating chases the
// candidate's recent momentum, and a far more sensitive logistic transform of
// the rating produces the 0–100 pressure score shown in the UI.
//
// Update is a pure function of the prior State and one quality input; given
// the same starting State and the same quality sequence the trajectory is
// exactly reproducible.
package rating

import "math"

// Trend classifies the direction of the most recent rating delta.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

const (
	// BaselineRating is the starting candidate and opponent rating.
	BaselineRating = 1200

	// deltaWindowSize is the capacity of the rolling signed-delta window that
	// drives opponent momentum.
	deltaWindowSize = 3

	// performanceWindowSize is the capacity of the rolling raw-quality window.
	performanceWindowSize = 5
)

// Params holds the tuned constants of the update. The blend weights and the
// display divisor have no documented derivation in the source material, so
// they are carried as configuration rather than hard-coded.
type Params struct {
	// JudgeWeight and HeuristicWeight blend the backend judge quality with the
	// local heuristic quality. They should sum to 1.
	JudgeWeight     float64
	HeuristicWeight float64

	// PairingDivisor scales the rating difference in the expected-outcome
	// logistic (the classic 400).
	PairingDivisor float64

	// DisplayDivisor scales the rating distance from baseline in the pressure
	// score transform. Much smaller than PairingDivisor so the displayed score
	// reacts visibly within a short session.
	DisplayDivisor float64

	// MomentumFactor is the fraction of the rolling delta sum added to the
	// next opponent rating.
	MomentumFactor float64

	// TrendThreshold is the absolute delta above which a turn is classified
	// as rising or falling.
	TrendThreshold float64

	// EaseStep is the fixed amount the opponent rating drops when the
	// candidate asks for an easier question.
	EaseStep float64
}

// DefaultParams returns the tuned constants used by the interview engine.
func DefaultParams() Params {
	return Params{
		JudgeWeight:     0.7,
		HeuristicWeight: 0.3,
		PairingDivisor:  400,
		DisplayDivisor:  40,
		MomentumFactor:  0.4,
		TrendThreshold:  5,
		EaseStep:        100,
	}
}

// State is the difficulty engine's full state for one session.
type State struct {
	// Rating is the candidate's internal rating.
	Rating float64

	// OpponentRating is the adaptive difficulty rating; it is the target
	// difficulty of the next generated question.
	OpponentRating float64

	// QuestionCount is the number of scored turns so far. It never moves on
	// skip or ease side channels.
	QuestionCount int

	// DeltaWindow holds the last signed rating deltas, oldest first.
	// Capacity deltaWindowSize; older entries silently drop.
	DeltaWindow []float64

	// PerformanceWindow holds the last raw judge qualities, oldest first.
	// Capacity performanceWindowSize.
	PerformanceWindow []float64

	// PressureScore is the current 0–100 display value.
	PressureScore float64

	// Trend is the classification of the most recent delta.
	Trend Trend
}

// NewState returns the baseline state: ratings at BaselineRating and the
// pressure score at the logistic midpoint (50).
func NewState() State {
	return State{
		Rating:         BaselineRating,
		OpponentRating: BaselineRating,
		PressureScore:  50,
		Trend:          TrendStable,
	}
}

// Update is the full computation record for one scored turn. Every field is
// reproducible from the prior State plus the two quality inputs.
type Update struct {
	K               float64
	HybridQuality   float64
	Expected        float64
	Delta           float64
	NewRating       float64
	NewOpponent     float64
	NormalizedScore float64
	Trend           Trend
}

// clamp01 clamps q to [0, 1]. Externally supplied qualities are clamped
// before blending to protect the logistic formulas from divergence.
func clamp01(q float64) float64 {
	return math.Max(0, math.Min(1, q))
}

// Apply feeds one quality observation into the engine and returns the new
// State together with the Update record.
//
// judgeQuality is the backend judge's score for the turn; heuristicQuality is
// the local text heuristic, both in [0, 1]. The volatility factor K decays as
// questions accumulate so the rating settles instead of oscillating, and the
// opponent rating chases the rolling delta sum rather than only the latest
// answer.
func Apply(s State, p Params, judgeQuality, heuristicQuality float64) (State, Update) {
	hybrid := p.JudgeWeight*clamp01(judgeQuality) + p.HeuristicWeight*clamp01(heuristicQuality)

	k := 100 / (1 + 0.02*float64(s.QuestionCount))
	expected := 1 / (1 + math.Pow(10, (s.OpponentRating-s.Rating)/p.PairingDivisor))
	delta := k * (hybrid - expected)
	newRating := s.Rating + delta

	deltas := pushWindow(s.DeltaWindow, delta, deltaWindowSize)
	var deltaSum float64
	for _, d := range deltas {
		deltaSum += d
	}
	newOpponent := newRating + p.MomentumFactor*deltaSum

	pressure := 100 / (1 + math.Pow(10, (BaselineRating-newRating)/p.DisplayDivisor))

	trend := TrendStable
	switch {
	case delta > p.TrendThreshold:
		trend = TrendRising
	case delta < -p.TrendThreshold:
		trend = TrendFalling
	}

	next := State{
		Rating:            newRating,
		OpponentRating:    newOpponent,
		QuestionCount:     s.QuestionCount + 1,
		DeltaWindow:       deltas,
		PerformanceWindow: pushWindow(s.PerformanceWindow, clamp01(judgeQuality), performanceWindowSize),
		PressureScore:     pressure,
		Trend:             trend,
	}
	return next, Update{
		K:               k,
		HybridQuality:   hybrid,
		Expected:        expected,
		Delta:           delta,
		NewRating:       newRating,
		NewOpponent:     newOpponent,
		NormalizedScore: pressure,
		Trend:           trend,
	}
}

// Ease lowers the opponent rating by the configured step. It is the side
// channel behind "ask me something easier" and does not count as a scored
// turn.
func Ease(s State, p Params) State {
	s.OpponentRating -= p.EaseStep
	return s
}

// pushWindow appends v to w, dropping the oldest entry once cap entries are
// held. The input slice is never mutated.
func pushWindow(w []float64, v float64, capacity int) []float64 {
	out := make([]float64, 0, capacity)
	start := 0
	if len(w) >= capacity {
		start = len(w) - capacity + 1
	}
	out = append(out, w[start:]...)
	return append(out, v)
}
