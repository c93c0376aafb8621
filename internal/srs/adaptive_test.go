package srs

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewedState(interval int, nextReview time.Time) State {
	last := nextReview.Add(-time.Duration(interval) * time.Minute)
	return State{
		Repetitions:    2,
		Interval:       interval,
		EaseFactor:     2.5,
		NextReview:     nextReview,
		LastReviewedAt: &last,
	}
}

func TestAdaptiveFactor(t *testing.T) {
	a := NewAdaptiveScheduler()

	tests := []struct {
		name     string
		stats    *UserStats
		category string
		expected float64
	}{
		{"nil stats are neutral", nil, "", 1.0},
		{"high accuracy widens", &UserStats{Accuracy: 0.95}, "", 1.2},
		{"streak adds a bonus", &UserStats{Accuracy: 0.95, Streak: 3}, "", 1.23},
		{"streak bonus is capped", &UserStats{Accuracy: 0.95, Streak: 40}, "", 1.3},
		{"low accuracy narrows", &UserStats{Accuracy: 0.5, Streak: 10}, "", 0.8},
		{"middling accuracy is neutral", &UserStats{Accuracy: 0.8}, "", 1.0},
		{
			"weak category pulls accuracy down",
			&UserStats{Accuracy: 0.95, CategoryAccuracy: map[string]float64{"verbs": 0.5}},
			"verbs",
			1.0,
		},
		{
			"unknown category uses overall accuracy",
			&UserStats{Accuracy: 0.95, CategoryAccuracy: map[string]float64{"verbs": 0.5}},
			"nouns",
			1.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, a.AdaptiveFactor(tt.stats, tt.category), 1e-9)
		})
	}
}

func TestAdaptiveSchedule_WidensForAccurateLearner(t *testing.T) {
	a := NewAdaptiveScheduler()
	next := a.Schedule(reviewedState(100, testNow), Review{
		Quality:    QualityComfortable,
		ReviewedAt: testNow,
		Stats:      &UserStats{Accuracy: 0.92},
	})

	assert.Equal(t, 3, next.Repetitions)
	assert.Equal(t, 300, next.Interval)
	assert.Equal(t, testNow.Add(300*time.Minute), next.NextReview)
}

func TestAdaptiveSchedule_ForgettingCurveAdjustment(t *testing.T) {
	a := NewAdaptiveScheduler()
	stats := &UserStats{Accuracy: 0.8}

	late := a.Schedule(reviewedState(200, testNow.Add(-200*time.Minute)), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, Stats: stats,
	})
	assert.Equal(t, 550, late.Interval, "one interval late earns a 10% bonus")

	veryLate := a.Schedule(reviewedState(200, testNow.Add(-20000*time.Minute)), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, Stats: stats,
	})
	assert.Equal(t, 575, veryLate.Interval, "bonus is capped at 15%")

	early := a.Schedule(reviewedState(200, testNow.Add(20000*time.Minute)), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, Stats: stats,
	})
	assert.Equal(t, 425, early.Interval, "early reviews lose at most 15%")
}

func TestAdaptiveSchedule_ResponseTime(t *testing.T) {
	a := NewAdaptiveScheduler(WithExpectedResponseTime(8 * time.Second))
	stats := &UserStats{Accuracy: 0.8}

	fast := a.Schedule(reviewedState(200, testNow), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, ResponseTime: 2 * time.Second, Stats: stats,
	})
	assert.Equal(t, 525, fast.Interval)

	slow := a.Schedule(reviewedState(200, testNow), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, ResponseTime: 30 * time.Second, Stats: stats,
	})
	assert.Equal(t, 475, slow.Interval)

	normal := a.Schedule(reviewedState(200, testNow), Review{
		Quality: QualityComfortable, ReviewedAt: testNow, ResponseTime: 8 * time.Second, Stats: stats,
	})
	assert.Equal(t, 500, normal.Interval)
}

func TestAdaptiveSchedule_FailureMatchesSM2(t *testing.T) {
	a := NewAdaptiveScheduler()
	in := Review{Quality: QualityIncorrect, ReviewedAt: testNow, Stats: &UserStats{Accuracy: 0.99}}

	next := a.Schedule(reviewedState(500, testNow), in)
	basic := BasicScheduler{}.Schedule(reviewedState(500, testNow), in)

	assert.Equal(t, basic.Repetitions, next.Repetitions)
	assert.Equal(t, basic.Interval, next.Interval)
	assert.InDelta(t, basic.EaseFactor, next.EaseFactor, 1e-9)
}

func TestAdaptiveSchedule_FallsBackOnBadInput(t *testing.T) {
	a := NewAdaptiveScheduler()

	tests := []struct {
		name  string
		stats *UserStats
		at    time.Time
	}{
		{"missing stats", nil, testNow},
		{"nan accuracy", &UserStats{Accuracy: math.NaN()}, testNow},
		{"accuracy above one", &UserStats{Accuracy: 1.5}, testNow},
		{"bad category accuracy", &UserStats{Accuracy: 0.9, CategoryAccuracy: map[string]float64{"x": -1}}, testNow},
		{"negative streak", &UserStats{Accuracy: 0.9, Streak: -2}, testNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Review{Quality: QualityComfortable, ReviewedAt: tt.at, Stats: tt.stats}
			next := a.Schedule(firstReviewState(), in)
			basic := BasicScheduler{}.Schedule(firstReviewState(), in)

			assert.Equal(t, basic.Interval, next.Interval)
			assert.Equal(t, basic.NextReview, next.NextReview)
			require.Len(t, next.History, 1, "fallback still records history")
			assert.Equal(t, 25, next.History[0].NewInterval)
		})
	}
}

func TestAdaptiveSchedule_HistoryIsBounded(t *testing.T) {
	a := NewAdaptiveScheduler()
	start := reviewedState(100, testNow)
	for i := 0; i < HistoryLimit; i++ {
		start.History = append(start.History, HistoryEntry{PreviousInterval: i})
	}

	next := a.Schedule(start, Review{
		Quality:      QualityInstant,
		ReviewedAt:   testNow,
		ResponseTime: 1500 * time.Millisecond,
		Stats:        &UserStats{Accuracy: 0.8},
	})

	require.Len(t, next.History, HistoryLimit)
	assert.Equal(t, 1, next.History[0].PreviousInterval, "oldest entry is dropped")
	latest := next.History[HistoryLimit-1]
	assert.Equal(t, QualityInstant, latest.Quality)
	assert.Equal(t, int64(1500), latest.ResponseTimeMs)
	assert.Equal(t, 100, latest.PreviousInterval)
	assert.Equal(t, next.Interval, latest.NewInterval)
	assert.InDelta(t, next.EaseFactor, latest.EaseFactor, 1e-9)
	assert.Len(t, start.History, HistoryLimit, "input history is not mutated")
}

func TestNew(t *testing.T) {
	for _, kind := range []string{KindBasic, KindAdaptive, KindFSRS} {
		s, err := New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, s.Name())
	}

	_, err := New("leitner")
	assert.ErrorIs(t, err, ErrUnknownScheduler)
}
