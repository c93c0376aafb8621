// Package srs implements the spaced-repetition models that decide when a word
// should be reviewed again.
//
// Three schedulers share the Scheduler interface:
//
//	BasicScheduler    - the SM-2 core, pure and total
//	AdaptiveScheduler - SM-2 widened or narrowed by learner accuracy, lateness
//	                    and response time, falling back to SM-2 on any error
//	FSRSScheduler     - go-fsrs memory model, falling back to SM-2 on any error
//
// Pick one with New at session construction time.
package srs

import (
	"errors"
	"fmt"
	"math"
	"time"

	gofsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"
)

// Scheduler kinds accepted by New.
const (
	KindBasic    = "basic"
	KindAdaptive = "adaptive"
	KindFSRS     = "fsrs"
)

// DefaultExpectedResponseTime is the answer time considered normal by the
// adaptive model's response-time adjustment.
const DefaultExpectedResponseTime = 8 * time.Second

// ErrUnknownScheduler is returned by New for an unsupported kind.
var ErrUnknownScheduler = errors.New("unknown scheduler")

// Scheduler maps the current state of a word and one graded review to the
// word's next state. Implementations never fail: they always return a state
// with in-bounds interval and ease and a NextReview derived from the interval.
type Scheduler interface {
	Schedule(state State, in Review) State
	Name() string
}

// Review is one graded attempt as seen by a scheduler.
type Review struct {
	Quality    Quality
	ReviewedAt time.Time
	// ResponseTime is how long the learner took to answer; zero when unknown.
	ResponseTime time.Duration
	// Category is the word's category, used for category accuracy.
	Category string
	// Stats summarises the learner's recent performance. Only the adaptive
	// model reads it.
	Stats *UserStats
}

// UserStats summarises a learner's recent performance.
type UserStats struct {
	Accuracy         float64            `json:"accuracy"`
	CategoryAccuracy map[string]float64 `json:"category_accuracy,omitempty"`
	Streak           int                `json:"streak"`
	TotalReviews     int                `json:"total_reviews"`
}

func (u *UserStats) validate() error {
	if u == nil {
		return errors.New("missing user stats")
	}
	if math.IsNaN(u.Accuracy) || u.Accuracy < 0 || u.Accuracy > 1 {
		return fmt.Errorf("accuracy out of range: %v", u.Accuracy)
	}
	if u.Streak < 0 {
		return fmt.Errorf("negative streak: %d", u.Streak)
	}
	for category, acc := range u.CategoryAccuracy {
		if math.IsNaN(acc) || acc < 0 || acc > 1 {
			return fmt.Errorf("category %q accuracy out of range: %v", category, acc)
		}
	}
	return nil
}

type options struct {
	logger           *zap.Logger
	expectedResponse time.Duration
	fsrsParams       *gofsrs.Parameters
}

// Option configures a scheduler built by New or the typed constructors.
type Option func(*options)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExpectedResponseTime sets the response time the adaptive model treats
// as neither fast nor slow.
func WithExpectedResponseTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expectedResponse = d
		}
	}
}

// WithFSRSParameters overrides the go-fsrs parameters used by FSRSScheduler.
func WithFSRSParameters(params gofsrs.Parameters) Option {
	return func(o *options) {
		o.fsrsParams = &params
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:           zap.NewNop(),
		expectedResponse: DefaultExpectedResponseTime,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the scheduler registered under kind.
func New(kind string, opts ...Option) (Scheduler, error) {
	switch kind {
	case KindBasic, "":
		return BasicScheduler{}, nil
	case KindAdaptive:
		return NewAdaptiveScheduler(opts...), nil
	case KindFSRS:
		return NewFSRSScheduler(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduler, kind)
	}
}
