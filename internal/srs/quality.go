package srs

import "fmt"

// Quality grades recall strength for one review attempt, from 0 (blackout)
// to 5 (instant recall).
type Quality int

const (
	QualityBlackout    Quality = iota // Blackout or skipped.
	QualityIncorrect                  // Wrong answer.
	QualityHinted                     // Correct only with a hint.
	QualityHesitant                   // Correct with hesitation.
	QualityComfortable                // Correct comfortably.
	QualityInstant                    // Correct instantly.
)

var qualityNames = [...]string{
	QualityBlackout:    "blackout",
	QualityIncorrect:   "incorrect",
	QualityHinted:      "hinted",
	QualityHesitant:    "hesitant",
	QualityComfortable: "comfortable",
	QualityInstant:     "instant",
}

// String returns the name of the quality, or "Quality(n)" when out of range.
func (q Quality) String() string {
	if q.Valid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// Valid reports whether q is within 0..5.
func (q Quality) Valid() bool {
	return q >= QualityBlackout && q <= QualityInstant
}

// Failed reports whether q gates a retry. Anything at or below "correct
// with a hint" counts as a failed attempt.
func (q Quality) Failed() bool {
	return q <= QualityHinted
}

// Passed reports whether q counts as a successful review for scheduling.
func (q Quality) Passed() bool {
	return q >= QualityHesitant
}

func clampQuality(q Quality) Quality {
	if q < QualityBlackout {
		return QualityBlackout
	}
	if q > QualityInstant {
		return QualityInstant
	}
	return q
}

// DetermineQuality maps the outcome of one attempt to a canonical quality.
//
// The table is fixed: a skip is always 0, a wrong answer is 0 with a hint and
// 1 without, a hinted correct answer is 2, and only an unassisted correct
// answer may use the learner's own rating, which is held to 3..5 and defaults
// to 3 when absent.
func DetermineQuality(isCorrect, usedHint, isSkipped bool, selected *Quality) Quality {
	switch {
	case isSkipped:
		return QualityBlackout
	case usedHint && !isCorrect:
		return QualityBlackout
	case !isCorrect:
		return QualityIncorrect
	case usedHint:
		return QualityHinted
	}

	if selected == nil {
		return QualityHesitant
	}
	switch q := *selected; {
	case q < QualityHesitant:
		return QualityHesitant
	case q > QualityInstant:
		return QualityInstant
	default:
		return q
	}
}
