// Package analytics receives the events a review session emits and derives
// the learner statistics the adaptive scheduler reads.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
)

// ReviewEvent is emitted once per finalized grading.
type ReviewEvent struct {
	WordID    string
	IsCorrect bool
	Quality   srs.Quality
	TimeSpent time.Duration
	Category  string
	At        time.Time
}

// SessionEvent is emitted once when a session completes.
type SessionEvent struct {
	Reviewed   int
	Correct    int
	ActiveTime time.Duration
	At         time.Time
}

// AnswerEvent feeds XP and streak bookkeeping, which lives outside this
// module.
type AnswerEvent struct {
	IsCorrect bool
	Quality   srs.Quality
	TimeSpent time.Duration
}

// Sink receives review and session events.
type Sink interface {
	RecordReview(ctx context.Context, ev ReviewEvent) error
	RecordSession(ctx context.Context, ev SessionEvent) error
}

// GamificationSink receives answer events.
type GamificationSink interface {
	RecordAnswer(ctx context.Context, ev AnswerEvent) error
}

// Nop discards every event.
type Nop struct{}

var (
	_ Sink             = Nop{}
	_ GamificationSink = Nop{}
)

func (Nop) RecordReview(context.Context, ReviewEvent) error   { return nil }
func (Nop) RecordSession(context.Context, SessionEvent) error { return nil }
func (Nop) RecordAnswer(context.Context, AnswerEvent) error   { return nil }

// Fanout delivers every event to all of its sinks. A failing sink does not
// stop delivery to the rest; the failures are joined.
type Fanout struct {
	Sinks        []Sink
	Gamification []GamificationSink
}

var (
	_ Sink             = Fanout{}
	_ GamificationSink = Fanout{}
)

// RecordReview implements Sink.
func (f Fanout) RecordReview(ctx context.Context, ev ReviewEvent) error {
	var errs []error
	for _, s := range f.Sinks {
		errs = append(errs, s.RecordReview(ctx, ev))
	}
	return errors.Join(errs...)
}

// RecordSession implements Sink.
func (f Fanout) RecordSession(ctx context.Context, ev SessionEvent) error {
	var errs []error
	for _, s := range f.Sinks {
		errs = append(errs, s.RecordSession(ctx, ev))
	}
	return errors.Join(errs...)
}

// RecordAnswer implements GamificationSink.
func (f Fanout) RecordAnswer(ctx context.Context, ev AnswerEvent) error {
	var errs []error
	for _, s := range f.Gamification {
		errs = append(errs, s.RecordAnswer(ctx, ev))
	}
	return errors.Join(errs...)
}
