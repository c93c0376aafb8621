package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/analytics"
	"github.com/danieldreier/mcp-vocab/internal/config"
	"github.com/danieldreier/mcp-vocab/internal/session"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrWordNotMature is returned when deleting a word that has not been
	// learned well enough without force.
	ErrWordNotMature = errors.New("word is not mature enough to delete")
	// ErrSessionActive is returned when starting a review while one runs.
	ErrSessionActive = errors.New("a review session is already running")
	// ErrNoSession is returned for review inputs without a running session.
	ErrNoSession = errors.New("no review session is running")
	// ErrWordInSession is returned when deleting a word the running review
	// still has to grade or persist.
	ErrWordInSession = errors.New("word is part of the running review")
)

// Variable to allow mocking time.Now in tests
var timeNow = time.Now

// VocabService manages vocabulary words and the active review session
type VocabService struct {
	Storage      storage.Storage
	Scheduler    srs.Scheduler
	Sink         analytics.Sink
	Gamification analytics.GamificationSink
	Config       *config.Config
	Logger       *zap.Logger

	mu      sync.Mutex
	session *session.Session
}

// NewVocabService wires storage, scheduler and analytics sinks together.
func NewVocabService(store storage.Storage, cfg *config.Config, logger *zap.Logger) (*VocabService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := srs.New(cfg.Scheduler,
		srs.WithLogger(logger.Named("srs")),
		srs.WithExpectedResponseTime(cfg.ExpectedResponseTime),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}

	logSink := analytics.NewLogSink(logger)
	return &VocabService{
		Storage:   store,
		Scheduler: scheduler,
		Sink: analytics.Fanout{
			Sinks: []analytics.Sink{logSink, analytics.NewStoreSink(store)},
		},
		Gamification: analytics.Fanout{
			Gamification: []analytics.GamificationSink{logSink},
		},
		Config: cfg,
		Logger: logger,
	}, nil
}

// AddWord creates a word, due immediately, and saves it.
func (s *VocabService) AddWord(nw storage.NewWord) (storage.Word, error) {
	s.Logger.Debug("Service AddWord called", zap.String("word", nw.Word), zap.Strings("tags", nw.Tags))
	word, err := s.Storage.CreateWord(nw)
	if err != nil {
		return storage.Word{}, fmt.Errorf("error creating word: %w", err)
	}
	if err := s.Storage.Save(); err != nil {
		return storage.Word{}, fmt.Errorf("error saving storage after creating word: %w", err)
	}
	return word, nil
}

// WordUpdate carries the fields to change; nil fields are left alone.
type WordUpdate struct {
	Word          *string
	Meaning       *string
	Example       *string
	Phonetic      *string
	Pronunciation *string
	Category      *string
	Tags          *[]string
}

// UpdateWord updates an existing word selectively based on non-nil fields.
// The schedule is never touched.
func (s *VocabService) UpdateWord(id string, upd WordUpdate) (storage.Word, error) {
	word, err := s.Storage.GetWord(id)
	if err != nil {
		return storage.Word{}, fmt.Errorf("error getting word %s: %w", id, err)
	}

	updated := false
	set := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			updated = true
		}
	}
	set(&word.Word, upd.Word)
	set(&word.Meaning, upd.Meaning)
	set(&word.Example, upd.Example)
	set(&word.Phonetic, upd.Phonetic)
	set(&word.Pronunciation, upd.Pronunciation)
	set(&word.Category, upd.Category)
	if upd.Tags != nil && !equalStringSlices(word.Tags, *upd.Tags) {
		word.Tags = *upd.Tags
		updated = true
	}

	if strings.TrimSpace(word.Word) == "" || strings.TrimSpace(word.Meaning) == "" {
		return storage.Word{}, storage.ErrInvalidWord
	}

	if updated {
		if err := s.Storage.UpdateWord(word); err != nil {
			return storage.Word{}, fmt.Errorf("error updating word %s in storage: %w", id, err)
		}
		if err := s.Storage.Save(); err != nil {
			return storage.Word{}, fmt.Errorf("error saving storage after updating word %s: %w", id, err)
		}
	}
	return word, nil
}

// equalStringSlices checks if two string slices are equal (considers order).
func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Mature reports whether a word has been learned well enough to be deleted
// without force.
func (s *VocabService) Mature(w storage.Word) bool {
	return w.SRS.Repetitions >= s.Config.DeleteMinRepetitions &&
		w.SRS.Interval >= s.Config.DeleteMinInterval
}

// DeleteWord deletes a word. Unless force is set, only mature words may be
// deleted.
func (s *VocabService) DeleteWord(id string, force bool) error {
	s.Logger.Debug("Starting DeleteWord", zap.String("word_id", id), zap.Bool("force", force))
	word, err := s.Storage.GetWord(id)
	if err != nil {
		return fmt.Errorf("error getting word %s: %w", id, err)
	}
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil && sess.Holds(id) {
		return fmt.Errorf("%w: end the review before deleting %s", ErrWordInSession, id)
	}

	if !force && !s.Mature(word) {
		return fmt.Errorf("%w: %d of %d repetitions, interval %d of %d minutes",
			ErrWordNotMature,
			word.SRS.Repetitions, s.Config.DeleteMinRepetitions,
			word.SRS.Interval, s.Config.DeleteMinInterval)
	}

	if err := s.Storage.DeleteWord(id); err != nil {
		s.Logger.Error("Storage.DeleteWord returned error", zap.String("word_id", id), zap.Error(err))
		return fmt.Errorf("error deleting word: %w", err)
	}
	if err := s.Storage.Save(); err != nil {
		s.Logger.Error("Storage.Save() returned error after delete", zap.String("word_id", id), zap.Error(err))
		return fmt.Errorf("error saving storage: %w", err)
	}
	return nil
}

// ListWords lists all words, optionally filtered by tags, with the overview.
func (s *VocabService) ListWords(tags []string) ([]storage.Word, analytics.Overview, error) {
	words, err := s.Storage.ListWords(tags)
	if err != nil {
		return nil, analytics.Overview{}, fmt.Errorf("error listing words: %w", err)
	}
	overview, err := s.Overview()
	if err != nil {
		return nil, analytics.Overview{}, err
	}
	return words, overview, nil
}

// DueWords returns the words due now.
func (s *VocabService) DueWords() ([]storage.Word, error) {
	words, err := s.Storage.DueWords(timeNow())
	if err != nil {
		return nil, fmt.Errorf("error listing due words: %w", err)
	}
	return words, nil
}

// Overview summarises the whole vocabulary.
func (s *VocabService) Overview() (analytics.Overview, error) {
	words, err := s.Storage.ListWords(nil)
	if err != nil {
		return analytics.Overview{}, fmt.Errorf("error listing words: %w", err)
	}
	reviews, err := s.Storage.ListReviews("")
	if err != nil {
		return analytics.Overview{}, fmt.Errorf("error listing reviews: %w", err)
	}
	return analytics.Summarize(words, reviews, timeNow()), nil
}

// UserStats derives the learner statistics from the review log.
func (s *VocabService) UserStats() (*srs.UserStats, error) {
	words, err := s.Storage.ListWords(nil)
	if err != nil {
		return nil, fmt.Errorf("error listing words: %w", err)
	}
	reviews, err := s.Storage.ListReviews("")
	if err != nil {
		return nil, fmt.Errorf("error listing reviews: %w", err)
	}
	return analytics.BuildUserStats(reviews, words, timeNow()), nil
}

// StartSession starts a review over the words due now. Only one session runs
// at a time.
func (s *VocabService) StartSession(ctx context.Context) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if s.session.State() != session.StateComplete {
			return nil, ErrSessionActive
		}
		s.session = nil
	}

	stats, err := s.UserStats()
	if err != nil {
		s.Logger.Warn("Could not build user stats, scheduling without them", zap.Error(err))
		stats = nil
	}

	repo := storage.NewRepository(s.Storage,
		storage.WithLogger(s.Logger),
		storage.WithClock(timeNow),
	)
	sess, err := session.Start(ctx, repo, session.Config{
		Scheduler:           s.Scheduler,
		Stats:               stats,
		RetryOnMistake:      s.Config.RetryOnMistake,
		RetryOnSkip:         s.Config.RetryOnSkip,
		Sink:                s.Sink,
		Gamification:        s.Gamification,
		InactivityThreshold: s.Config.InactivityThreshold,
		Logger:              s.Logger.Named("session"),
		Clock:               timeNow,
	})
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// Session returns the running session.
func (s *VocabService) Session() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.session, nil
}

// EndSession ends the running session early and forgets it. Unpersisted
// schedules get one more write attempt.
func (s *VocabService) EndSession(ctx context.Context) (session.Summary, error) {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return session.Summary{}, ErrNoSession
	}
	return s.finish(ctx, sess)
}

// ReleaseIfComplete forgets sess once it has completed on its own.
func (s *VocabService) ReleaseIfComplete(ctx context.Context, sess *session.Session) (session.Summary, bool) {
	if sess.State() != session.StateComplete {
		return session.Summary{}, false
	}
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()

	summary, err := s.finish(ctx, sess)
	if err != nil {
		s.Logger.Warn("Error finishing session", zap.Error(err))
	}
	return summary, true
}

func (s *VocabService) finish(ctx context.Context, sess *session.Session) (session.Summary, error) {
	if _, err := sess.End(ctx); err != nil {
		return session.Summary{}, err
	}
	if len(sess.PendingSync()) > 0 {
		if err := sess.RetrySync(ctx); err != nil {
			s.Logger.Warn("Some schedules are still not persisted", zap.Error(err))
		}
	}
	summary, _ := sess.Summary()
	return summary, nil
}
