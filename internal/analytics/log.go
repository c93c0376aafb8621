package analytics

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every event to a zap logger at info level.
type LogSink struct {
	logger *zap.Logger
}

var (
	_ Sink             = (*LogSink)(nil)
	_ GamificationSink = (*LogSink)(nil)
)

// NewLogSink returns a sink logging to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("analytics")}
}

func (l *LogSink) RecordReview(_ context.Context, ev ReviewEvent) error {
	l.logger.Info("Review recorded",
		zap.String("word_id", ev.WordID),
		zap.Bool("correct", ev.IsCorrect),
		zap.Int("quality", int(ev.Quality)),
		zap.Duration("time_spent", ev.TimeSpent))
	return nil
}

func (l *LogSink) RecordSession(_ context.Context, ev SessionEvent) error {
	l.logger.Info("Session completed",
		zap.Int("reviewed", ev.Reviewed),
		zap.Int("correct", ev.Correct),
		zap.Duration("active_time", ev.ActiveTime))
	return nil
}

func (l *LogSink) RecordAnswer(_ context.Context, ev AnswerEvent) error {
	l.logger.Debug("Answer recorded",
		zap.Bool("correct", ev.IsCorrect),
		zap.Int("quality", int(ev.Quality)),
		zap.Duration("time_spent", ev.TimeSpent))
	return nil
}
