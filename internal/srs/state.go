package srs

import (
	"math"
	"time"

	gofsrs "github.com/open-spaced-repetition/go-fsrs"
)

// Bounds shared by every scheduler. Intervals are stored in minutes.
const (
	MinInterval       = 10
	MaxInterval       = 525600 // one year
	MinEaseFactor     = 1.3
	MaxEaseFactor     = 2.5
	DefaultEaseFactor = 2.5
	HistoryLimit      = 20

	nearMissInterval = 30
	easePenalty      = 0.2
)

// HistoryEntry is one past review kept for trend-aware scheduling.
type HistoryEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	Quality          Quality   `json:"quality"`
	ResponseTimeMs   int64     `json:"response_time_ms,omitempty"`
	PreviousInterval int       `json:"previous_interval"`
	NewInterval      int       `json:"new_interval"`
	EaseFactor       float64   `json:"ease_factor"`
}

// State is the scheduling state of a single word. It is only ever replaced
// by the output of a Scheduler.
type State struct {
	Repetitions    int            `json:"repetitions"`
	Interval       int            `json:"interval"`
	EaseFactor     float64        `json:"ease_factor"`
	NextReview     time.Time      `json:"next_review"`
	LastQuality    *Quality       `json:"last_quality,omitempty"`
	LastReviewedAt *time.Time     `json:"last_reviewed_at,omitempty"`
	History        []HistoryEntry `json:"review_history,omitempty"`
	// Memory holds the FSRS memory state when the FSRS scheduler is in use.
	Memory *gofsrs.Card `json:"memory,omitempty"`
}

// NewState returns the state of a freshly added word: no repetitions,
// default ease, minimum interval and due immediately.
func NewState(now time.Time) State {
	return State{
		Interval:   MinInterval,
		EaseFactor: DefaultEaseFactor,
		NextReview: now,
	}
}

// IsDue reports whether the word should be reviewed at now. A state that was
// never scheduled is always due.
func (s State) IsDue(now time.Time) bool {
	return s.NextReview.IsZero() || !s.NextReview.After(now)
}

// IsZero reports whether the state carries no scheduling information.
func (s State) IsZero() bool {
	return s.Repetitions == 0 && s.Interval == 0 && s.EaseFactor == 0 && s.NextReview.IsZero()
}

// normalized replaces malformed fields with first-review defaults.
func (s State) normalized() State {
	if s.Repetitions < 0 || s.Interval <= 0 || s.EaseFactor <= 0 ||
		math.IsNaN(s.EaseFactor) || math.IsInf(s.EaseFactor, 0) {
		s.Repetitions = 0
		s.Interval = MinInterval
		s.EaseFactor = DefaultEaseFactor
	}
	s.Interval = clampInterval(s.Interval)
	s.EaseFactor = clampEase(s.EaseFactor)
	return s
}

func clampInterval(minutes int) int {
	if minutes < MinInterval {
		return MinInterval
	}
	if minutes > MaxInterval {
		return MaxInterval
	}
	return minutes
}

// roundInterval rounds a fractional interval and clamps it before converting,
// so very large products never overflow int.
func roundInterval(minutes float64) int {
	if minutes >= MaxInterval {
		return MaxInterval
	}
	return clampInterval(int(math.Round(minutes)))
}

func clampEase(ef float64) float64 {
	return math.Max(MinEaseFactor, math.Min(MaxEaseFactor, ef))
}

// easeDelta is the SM-2 ease adjustment for a successful review.
func easeDelta(q Quality) float64 {
	d := float64(QualityInstant - q)
	return 0.1 - d*(0.08+d*0.02)
}

// failedInterval is the relearning interval after a failed review.
func failedInterval(q Quality) int {
	if q <= QualityIncorrect {
		return MinInterval
	}
	return nearMissInterval
}

// stamp derives NextReview from Interval and records the review.
func stamp(s State, q Quality, at time.Time) State {
	s.NextReview = at.Add(time.Duration(s.Interval) * time.Minute)
	lq := q
	s.LastQuality = &lq
	ts := at
	s.LastReviewedAt = &ts
	return s
}

// withHistory returns next with a history entry for the transition from prev
// appended. The slice is copied so snapshots never share a backing array.
func withHistory(prev, next State, in Review) State {
	entries := make([]HistoryEntry, 0, len(prev.History)+1)
	entries = append(entries, prev.History...)
	entries = append(entries, HistoryEntry{
		Timestamp:        in.ReviewedAt,
		Quality:          clampQuality(in.Quality),
		ResponseTimeMs:   in.ResponseTime.Milliseconds(),
		PreviousInterval: prev.normalized().Interval,
		NewInterval:      next.Interval,
		EaseFactor:       next.EaseFactor,
	})
	if len(entries) > HistoryLimit {
		entries = entries[len(entries)-HistoryLimit:]
	}
	next.History = entries
	return next
}
