package srs

import "time"

// BasicScheduler is the SM-2 core.
type BasicScheduler struct{}

var _ Scheduler = BasicScheduler{}

// Name implements Scheduler.
func (BasicScheduler) Name() string { return KindBasic }

// Schedule implements Scheduler.
//
// A passing review (quality >= 3) increments the repetition count, multiplies
// the interval by the current ease factor and adjusts the ease with the SM-2
// formula. A failing review resets repetitions, sets the interval to 10
// minutes (30 for a hinted near miss) and lowers the ease by 0.2. Intervals
// are held to [MinInterval, MaxInterval] and ease to [1.3, 2.5].
func (BasicScheduler) Schedule(state State, in Review) State {
	return sm2(state.normalized(), clampQuality(in.Quality), in.ReviewedAt)
}

func sm2(s State, q Quality, at time.Time) State {
	if q.Passed() {
		s.Repetitions++
		s.Interval = roundInterval(float64(s.Interval) * s.EaseFactor)
		s.EaseFactor = clampEase(s.EaseFactor + easeDelta(q))
	} else {
		s.Repetitions = 0
		s.Interval = failedInterval(q)
		s.EaseFactor = clampEase(s.EaseFactor - easePenalty)
	}
	return stamp(s, q, at)
}
