package srs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	highAccuracy        = 0.9
	lowAccuracy         = 0.7
	wideFactor          = 1.2
	narrowFactor        = 0.8
	streakBonusPerDay   = 0.01
	maxStreakBonus      = 0.1
	overallWeight       = 0.7
	categoryWeight      = 0.3
	forgettingSlope     = 0.1
	minForgettingAdj    = 0.85
	maxForgettingAdj    = 1.15
	fastResponseBonus   = 1.05
	slowResponsePenalty = 0.95
)

// AdaptiveScheduler extends SM-2 with the learner's accuracy, how late the
// review happened and how quickly the learner answered. Any internal failure
// falls back to BasicScheduler.
type AdaptiveScheduler struct {
	fallback         BasicScheduler
	expectedResponse time.Duration
	logger           *zap.Logger
}

var _ Scheduler = (*AdaptiveScheduler)(nil)

// NewAdaptiveScheduler creates an adaptive scheduler.
func NewAdaptiveScheduler(opts ...Option) *AdaptiveScheduler {
	o := buildOptions(opts)
	return &AdaptiveScheduler{
		expectedResponse: o.expectedResponse,
		logger:           o.logger,
	}
}

// Name implements Scheduler.
func (a *AdaptiveScheduler) Name() string { return KindAdaptive }

// Schedule implements Scheduler.
func (a *AdaptiveScheduler) Schedule(state State, in Review) State {
	next, err := a.schedule(state, in)
	if err != nil {
		a.logger.Warn("Adaptive scheduling failed, falling back to SM-2",
			zap.Int("quality", int(in.Quality)),
			zap.Error(err))
		next = a.fallback.Schedule(state, in)
	}
	return withHistory(state, next, in)
}

func (a *AdaptiveScheduler) schedule(state State, in Review) (State, error) {
	if err := in.Stats.validate(); err != nil {
		return State{}, err
	}
	if in.ReviewedAt.IsZero() {
		return State{}, errors.New("missing review time")
	}

	s := state.normalized()
	q := clampQuality(in.Quality)

	if !q.Passed() {
		return sm2(s, q, in.ReviewedAt), nil
	}

	factor := a.AdaptiveFactor(in.Stats, in.Category)
	raw := float64(s.Interval) * s.EaseFactor * factor *
		forgettingAdjustment(state, in.ReviewedAt) *
		a.responseAdjustment(in.ResponseTime)
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return State{}, fmt.Errorf("interval is not finite: %v", raw)
	}

	s.Repetitions++
	s.Interval = roundInterval(raw)
	s.EaseFactor = clampEase(s.EaseFactor + easeDelta(q))
	return stamp(s, q, in.ReviewedAt), nil
}

// AdaptiveFactor scales interval growth by how well the learner is doing:
// wider for high accuracy (plus a bonus for an active streak), narrower for
// low accuracy, neutral otherwise.
func (a *AdaptiveScheduler) AdaptiveFactor(stats *UserStats, category string) float64 {
	if stats == nil {
		return 1.0
	}
	accuracy := stats.Accuracy
	if acc, ok := stats.CategoryAccuracy[category]; ok && category != "" {
		accuracy = overallWeight*stats.Accuracy + categoryWeight*acc
	}

	switch {
	case accuracy >= highAccuracy:
		bonus := math.Min(float64(stats.Streak)*streakBonusPerDay, maxStreakBonus)
		return wideFactor + bonus
	case accuracy < lowAccuracy:
		return narrowFactor
	default:
		return 1.0
	}
}

// forgettingAdjustment rewards recall after a late review and trims the
// gain of an early one, bounded to [0.85, 1.15].
func forgettingAdjustment(prev State, at time.Time) float64 {
	if prev.NextReview.IsZero() || prev.LastReviewedAt == nil || prev.Interval <= 0 {
		return 1.0
	}
	lateness := at.Sub(prev.NextReview).Minutes() / float64(prev.Interval)
	adj := 1 + forgettingSlope*lateness
	return math.Max(minForgettingAdj, math.Min(maxForgettingAdj, adj))
}

func (a *AdaptiveScheduler) responseAdjustment(rt time.Duration) float64 {
	if rt <= 0 || a.expectedResponse <= 0 {
		return 1.0
	}
	switch {
	case rt < a.expectedResponse/2:
		return fastResponseBonus
	case rt > a.expectedResponse*2:
		return slowResponsePenalty
	default:
		return 1.0
	}
}
