package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Repository adapts a Storage to the narrow read-due/write-back contract a
// review session needs. Every update is written through to disk.
type Repository struct {
	store  Storage
	logger *zap.Logger
	clock  func() time.Time
}

// NewRepository wraps store.
func NewRepository(store Storage, opts ...Option) *Repository {
	c := newConfig(opts)
	return &Repository{store: store, logger: c.logger, clock: c.clock}
}

// GetDueWords returns the words due now, oldest NextReview first.
func (r *Repository) GetDueWords(ctx context.Context) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words, err := r.store.DueWords(r.clock())
	if err != nil {
		return nil, fmt.Errorf("error listing due words: %w", err)
	}
	return words, nil
}

// UpdateWord replaces the stored record for id with word and saves.
func (r *Repository) UpdateWord(ctx context.Context, id string, word Word) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if word.ID != id {
		return fmt.Errorf("word id %q does not match %q", word.ID, id)
	}
	if err := r.store.UpdateWord(word); err != nil {
		return fmt.Errorf("error updating word %s: %w", id, err)
	}
	if err := r.store.Save(); err != nil {
		r.logger.Warn("Word updated in memory but not saved", zap.String("word_id", id), zap.Error(err))
		return fmt.Errorf("error saving storage after updating word %s: %w", id, err)
	}
	return nil
}
