package analytics

import (
	"context"
	"fmt"

	"github.com/danieldreier/mcp-vocab/internal/storage"
)

// StoreSink persists review and session events as storage logs, which later
// feed BuildUserStats and Summarize.
type StoreSink struct {
	store storage.Storage
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink returns a sink writing to store.
func NewStoreSink(store storage.Storage) *StoreSink {
	return &StoreSink{store: store}
}

// RecordReview implements Sink.
func (s *StoreSink) RecordReview(ctx context.Context, ev ReviewEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.store.AddReview(storage.ReviewLog{
		WordID:      ev.WordID,
		Quality:     ev.Quality,
		IsCorrect:   ev.IsCorrect,
		TimeSpentMs: ev.TimeSpent.Milliseconds(),
		Category:    ev.Category,
		Timestamp:   ev.At,
	})
	if err != nil {
		return fmt.Errorf("error recording review for word %s: %w", ev.WordID, err)
	}
	if err := s.store.Save(); err != nil {
		return fmt.Errorf("error saving review log: %w", err)
	}
	return nil
}

// RecordSession implements Sink.
func (s *StoreSink) RecordSession(ctx context.Context, ev SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.store.AddSession(storage.SessionLog{
		Reviewed:     ev.Reviewed,
		Correct:      ev.Correct,
		ActiveTimeMs: ev.ActiveTime.Milliseconds(),
		EndedAt:      ev.At,
	})
	if err != nil {
		return fmt.Errorf("error recording session: %w", err)
	}
	if err := s.store.Save(); err != nil {
		return fmt.Errorf("error saving session log: %w", err)
	}
	return nil
}
