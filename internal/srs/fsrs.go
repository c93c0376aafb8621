package srs

import (
	"math"

	gofsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"
)

// FSRSScheduler schedules with the go-fsrs memory model. Repetition and ease
// bookkeeping follow SM-2 so the state stays comparable across schedulers;
// only the interval comes from FSRS.
type FSRSScheduler struct {
	parameters gofsrs.Parameters
	fallback   BasicScheduler
	logger     *zap.Logger
}

var _ Scheduler = (*FSRSScheduler)(nil)

// NewFSRSScheduler creates an FSRS scheduler with default go-fsrs parameters
// unless WithFSRSParameters is given.
func NewFSRSScheduler(opts ...Option) *FSRSScheduler {
	o := buildOptions(opts)
	params := gofsrs.DefaultParam()
	if o.fsrsParams != nil {
		params = *o.fsrsParams
	}
	return &FSRSScheduler{
		parameters: params,
		logger:     o.logger,
	}
}

// Name implements Scheduler.
func (f *FSRSScheduler) Name() string { return KindFSRS }

// Schedule implements Scheduler.
func (f *FSRSScheduler) Schedule(state State, in Review) State {
	base := f.fallback.Schedule(state, in)

	card := gofsrs.NewCard()
	if state.Memory != nil {
		card = *state.Memory
	}

	info, ok := f.parameters.Repeat(card, in.ReviewedAt)[ratingFor(clampQuality(in.Quality))]
	if !ok {
		f.logger.Warn("FSRS returned no scheduling info, using SM-2 interval",
			zap.Int("quality", int(in.Quality)))
		return withHistory(state, base, in)
	}

	minutes := info.Card.Due.Sub(in.ReviewedAt).Minutes()
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		f.logger.Warn("FSRS interval is not finite, using SM-2 interval",
			zap.Float64("minutes", minutes))
		return withHistory(state, base, in)
	}

	base.Interval = roundInterval(minutes)
	memory := info.Card
	base.Memory = &memory
	return withHistory(state, stamp(base, clampQuality(in.Quality), in.ReviewedAt), in)
}

// ratingFor maps a 0..5 quality onto the four FSRS ratings.
func ratingFor(q Quality) gofsrs.Rating {
	switch {
	case q <= QualityIncorrect:
		return gofsrs.Again
	case q == QualityHinted:
		return gofsrs.Hard
	case q == QualityHesitant:
		return gofsrs.Good
	default:
		return gofsrs.Easy
	}
}
