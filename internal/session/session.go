// Package session runs an interactive vocabulary review.
//
// A Session owns a queue of due-word snapshots taken once at Start. Each word
// goes through Presenting, then Graded or RetryRequired, then Advancing, where
// its new schedule is written back through the Repository and reported to
// the analytics sinks. The session ends in Complete when the queue is empty or
// End is called. Inputs are serialised: every transition, including its
// repository and sink calls, finishes before the next input is accepted.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/analytics"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/danieldreier/mcp-vocab/internal/tracker"
	"go.uber.org/zap"
)

// Repository is the session's view of persisted words. It is read once at
// Start and written once per finalized word.
type Repository interface {
	// GetDueWords returns the words due now, oldest NextReview first.
	GetDueWords(ctx context.Context) ([]storage.Word, error)
	// UpdateWord stores the full record for id.
	UpdateWord(ctx context.Context, id string, word storage.Word) error
}

// Config configures a session. The zero value is usable: SM-2 scheduling, no
// retry gate, no analytics.
type Config struct {
	Scheduler srs.Scheduler
	// Stats feeds the adaptive scheduler.
	Stats *srs.UserStats
	// RetryOnMistake makes a failed grading wait for a correct retype.
	RetryOnMistake bool
	// RetryOnSkip applies the retype gate to skipped words too.
	RetryOnSkip bool

	Sink         analytics.Sink
	Gamification analytics.GamificationSink

	InactivityThreshold time.Duration
	Logger              *zap.Logger
	Clock               func() time.Time
}

// DefaultConfig returns the configuration used by the CLI and server.
func DefaultConfig() Config {
	return Config{
		Scheduler:           srs.BasicScheduler{},
		RetryOnMistake:      true,
		InactivityThreshold: tracker.DefaultThreshold,
	}
}

// attempt is the per-word context, reset when the next word is presented.
type attempt struct {
	word storage.Word
	// Tracker active time when the word was presented.
	activeAtPresent time.Duration

	usedHint bool
	draft    string

	answer         string
	isCorrect      bool
	skipped        bool
	quality        srs.Quality
	awaitingRating bool
	gradedAt       time.Time
	responseTime   time.Duration
	retries        int
}

// Session is a single review run. It is safe for concurrent use; inputs are
// applied one at a time.
type Session struct {
	mu sync.Mutex

	repo         Repository
	scheduler    srs.Scheduler
	userStats    *srs.UserStats
	retryMistake bool
	retrySkip    bool
	sink         analytics.Sink
	gamification analytics.GamificationSink
	logger       *zap.Logger
	clock        func() time.Time
	tracker      *tracker.Tracker

	queue  []storage.Word
	cur    attempt
	state  State
	paused bool
	stats  Stats

	pending      map[string]storage.Word
	pendingOrder []string

	summary *Summary
}

// Start loads the due words once and presents the first. It returns
// ErrNothingToReview when nothing is due.
func Start(ctx context.Context, repo Repository, cfg Config) (*Session, error) {
	s := &Session{
		repo:         repo,
		scheduler:    cfg.Scheduler,
		userStats:    cfg.Stats,
		retryMistake: cfg.RetryOnMistake,
		retrySkip:    cfg.RetryOnSkip,
		sink:         cfg.Sink,
		gamification: cfg.Gamification,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		pending:      make(map[string]storage.Word),
	}
	if s.scheduler == nil {
		s.scheduler = srs.BasicScheduler{}
	}
	if s.sink == nil {
		s.sink = analytics.Nop{}
	}
	if s.gamification == nil {
		s.gamification = analytics.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	words, err := repo.GetDueWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading due words: %w", err)
	}
	s.queue = dedupe(words)
	if len(s.queue) == 0 {
		return nil, ErrNothingToReview
	}

	s.tracker = tracker.New(
		tracker.WithClock(s.clock),
		tracker.WithThreshold(cfg.InactivityThreshold),
		tracker.WithLogger(s.logger),
	)
	now := s.clock()
	s.stats.StartedAt = now
	s.present()

	s.logger.Info("Review session started",
		zap.Int("due", len(s.queue)),
		zap.String("scheduler", s.scheduler.Name()))
	return s, nil
}

// dedupe keeps the first occurrence of every ID, preserving order, and takes
// value copies so the queue shares nothing with the caller.
func dedupe(words []storage.Word) []storage.Word {
	seen := make(map[string]bool, len(words))
	out := make([]storage.Word, 0, len(words))
	for _, w := range words {
		if seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		out = append(out, w.Clone())
	}
	return out
}

func (s *Session) present() {
	s.cur = attempt{
		word:            s.queue[0],
		activeAtPresent: s.tracker.ActiveTime(),
	}
	s.state = StatePresenting
}

// guard rejects inputs after completion and while paused.
func (s *Session) guard() error {
	if s.state == StateComplete {
		return ErrSessionComplete
	}
	if s.paused {
		return ErrPaused
	}
	return nil
}

func (s *Session) expect(states ...State) error {
	if err := s.guard(); err != nil {
		return err
	}
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: not accepted in state %s", ErrInvalidTransition, s.state)
}

func matches(answer, word string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(word))
}

// ShowHint marks the current word as hinted and returns its masked form. The
// flag cannot be cleared for this word.
func (s *Session) ShowHint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePresenting); err != nil {
		return "", err
	}
	s.cur.usedHint = true
	s.tracker.Activity(tracker.ActivityPointer)
	return Hint(s.cur.word.Word), nil
}

// UpdateDraft records the answer being typed. It counts as activity.
func (s *Session) UpdateDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePresenting, StateRetryRequired); err != nil {
		return err
	}
	s.cur.draft = text
	s.tracker.Activity(tracker.ActivityInput)
	return nil
}

// Submit grades an answer for the current word.
//
// A correct answer without a hint waits in Graded for Rate or Continue. Any
// other answer is graded immediately; a failing quality enters RetryRequired
// when the retry gate is on and advances otherwise.
func (s *Session) Submit(ctx context.Context, answer string) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePresenting); err != nil {
		return Feedback{}, err
	}
	s.tracker.Activity(tracker.ActivityInput)

	correct := matches(answer, s.cur.word.Word)
	s.grade(answer, correct, false)

	if correct && !s.cur.usedHint {
		s.cur.awaitingRating = true
		s.state = StateGraded
		return s.feedback(), nil
	}

	s.cur.quality = srs.DetermineQuality(correct, s.cur.usedHint, false, nil)
	return s.afterGrade(ctx, s.retryMistake), nil
}

// Skip grades the current word with quality 0.
func (s *Session) Skip(ctx context.Context) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePresenting); err != nil {
		return Feedback{}, err
	}
	s.tracker.Activity(tracker.ActivityInput)

	s.grade("", false, true)
	s.cur.quality = srs.DetermineQuality(false, s.cur.usedHint, true, nil)
	return s.afterGrade(ctx, s.retrySkip), nil
}

// grade counts the word and freezes the answer. Must be called with mu held.
func (s *Session) grade(answer string, correct, skipped bool) {
	now := s.clock()
	s.cur.answer = answer
	s.cur.isCorrect = correct
	s.cur.skipped = skipped
	s.cur.gradedAt = now
	// Active time only, so paused and idle stretches do not count.
	s.cur.responseTime = s.tracker.ActiveTime() - s.cur.activeAtPresent

	s.stats.Reviewed++
	if correct {
		s.stats.Correct++
	}
}

func (s *Session) afterGrade(ctx context.Context, retry bool) Feedback {
	if retry && s.cur.quality.Failed() {
		s.state = StateRetryRequired
		return s.feedback()
	}
	return s.advance(ctx)
}

// Rate finalizes a correct unaided answer with the learner's rating, held to
// 3..5.
func (s *Session) Rate(ctx context.Context, q srs.Quality) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateGraded); err != nil {
		return Feedback{}, err
	}
	s.tracker.Activity(tracker.ActivityPointer)
	s.cur.quality = srs.DetermineQuality(true, false, false, &q)
	return s.advance(ctx), nil
}

// Continue finalizes a correct unaided answer with the default rating.
func (s *Session) Continue(ctx context.Context) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateGraded); err != nil {
		return Feedback{}, err
	}
	s.tracker.Activity(tracker.ActivityPointer)
	s.cur.quality = srs.DetermineQuality(true, false, false, nil)
	return s.advance(ctx), nil
}

// SubmitRetry checks a retype of the current word. A mismatch keeps the
// session in RetryRequired and only bumps the attempt counter; a match
// advances with the quality already recorded.
func (s *Session) SubmitRetry(ctx context.Context, typed string) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateRetryRequired); err != nil {
		return Feedback{}, err
	}
	s.tracker.Activity(tracker.ActivityInput)
	s.cur.retries++
	s.cur.draft = ""

	if !matches(typed, s.cur.word.Word) {
		fb := s.feedback()
		fb.Answer = typed
		return fb, nil
	}
	return s.advance(ctx), nil
}

// advance finalizes the current word and presents the next one, or completes
// the session. Must be called with mu held.
func (s *Session) advance(ctx context.Context) Feedback {
	fb := s.finalize(ctx)
	if len(s.queue) == 0 {
		s.complete(ctx)
	} else {
		s.present()
	}
	fb.State = s.state
	return fb
}

// finalize runs the Advancing step for the current word: schedule, write
// back, report and dequeue. Failures never stop it.
func (s *Session) finalize(ctx context.Context) Feedback {
	s.state = StateAdvancing
	cur := s.cur
	fb := s.feedback()

	updated := cur.word.Clone()
	updated.SRS = s.scheduler.Schedule(cur.word.SRS, srs.Review{
		Quality:      cur.quality,
		ReviewedAt:   cur.gradedAt,
		ResponseTime: cur.responseTime,
		Category:     cur.word.Category,
		Stats:        s.userStats,
	})
	scheduled := updated.SRS
	fb.Scheduled = &scheduled

	logger := s.logger.With(zap.String("word_id", cur.word.ID))
	if err := s.repo.UpdateWord(ctx, cur.word.ID, updated); err != nil {
		logger.Warn("Failed to persist schedule, keeping it for retry", zap.Error(err))
		s.addPending(updated)
		fb.PersistErr = err
	} else {
		s.removePending(cur.word.ID)
	}

	if err := s.sink.RecordReview(ctx, analytics.ReviewEvent{
		WordID:    cur.word.ID,
		IsCorrect: cur.isCorrect,
		Quality:   cur.quality,
		TimeSpent: cur.responseTime,
		Category:  cur.word.Category,
		At:        cur.gradedAt,
	}); err != nil {
		logger.Warn("Failed to record review", zap.Error(err))
		fb.Warnings = append(fb.Warnings, err)
	}
	if err := s.gamification.RecordAnswer(ctx, analytics.AnswerEvent{
		IsCorrect: cur.isCorrect,
		Quality:   cur.quality,
		TimeSpent: cur.responseTime,
	}); err != nil {
		logger.Warn("Failed to record answer", zap.Error(err))
		fb.Warnings = append(fb.Warnings, err)
	}

	logger.Debug("Word finalized",
		zap.Int("quality", int(cur.quality)),
		zap.Int("interval", scheduled.Interval),
		zap.Time("next_review", scheduled.NextReview))

	s.dequeue(cur.word.ID)
	s.cur = attempt{}
	return fb
}

func (s *Session) dequeue(id string) {
	for i, w := range s.queue {
		if w.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Session) addPending(w storage.Word) {
	if _, ok := s.pending[w.ID]; !ok {
		s.pendingOrder = append(s.pendingOrder, w.ID)
	}
	s.pending[w.ID] = w
}

func (s *Session) removePending(id string) {
	if _, ok := s.pending[id]; !ok {
		return
	}
	delete(s.pending, id)
	for i, pid := range s.pendingOrder {
		if pid == id {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			break
		}
	}
}

// complete moves to Complete, stops the tracker and emits the session event.
// It runs once. Must be called with mu held.
func (s *Session) complete(ctx context.Context) {
	if s.summary != nil {
		return
	}
	s.state = StateComplete
	s.paused = false
	ts := s.tracker.Stop()

	summary := Summary{
		Reviewed:    s.stats.Reviewed,
		Correct:     s.stats.Correct,
		Accuracy:    s.stats.Accuracy(),
		ActiveTime:  ts.ActiveTime,
		WallTime:    ts.EndedAt.Sub(s.stats.StartedAt),
		Remaining:   len(s.queue),
		PendingSync: len(s.pending),
		StartedAt:   s.stats.StartedAt,
		EndedAt:     ts.EndedAt,
	}
	s.summary = &summary

	if err := s.sink.RecordSession(ctx, analytics.SessionEvent{
		Reviewed:   summary.Reviewed,
		Correct:    summary.Correct,
		ActiveTime: summary.ActiveTime,
		At:         summary.EndedAt,
	}); err != nil {
		s.logger.Warn("Failed to record session", zap.Error(err))
	}
	s.logger.Info("Review session complete",
		zap.Int("reviewed", summary.Reviewed),
		zap.Int("correct", summary.Correct),
		zap.Duration("active_time", summary.ActiveTime),
		zap.Int("remaining", summary.Remaining))
}

// Pause freezes inputs and the tracker. The draft is kept.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateComplete {
		return ErrSessionComplete
	}
	if s.paused {
		return nil
	}
	s.paused = true
	s.tracker.Pause()
	return nil
}

// Resume lifts a pause.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateComplete {
		return ErrSessionComplete
	}
	if !s.paused {
		return nil
	}
	s.paused = false
	s.tracker.Resume()
	return nil
}

// End terminates the session early. A graded word is finalized first; a
// word that is only being presented is left untouched and stays due. Calling
// End on a complete session returns the same summary.
func (s *Session) End(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary != nil {
		return *s.summary, nil
	}

	switch s.state {
	case StateGraded:
		if s.cur.awaitingRating {
			s.cur.quality = srs.DetermineQuality(true, false, false, nil)
		}
		s.finalize(ctx)
	case StateRetryRequired:
		s.finalize(ctx)
	}
	s.complete(ctx)
	return *s.summary, nil
}

// Summary returns the completion report, or false while the session runs.
func (s *Session) Summary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}

// PendingSync returns the IDs of words whose schedule has not been persisted.
func (s *Session) PendingSync() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.pendingOrder))
	copy(ids, s.pendingOrder)
	return ids
}

// RetrySync re-attempts every pending write. Words written successfully are
// dropped from the pending set; the remaining failures are joined.
func (s *Session) RetrySync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, id := range append([]string(nil), s.pendingOrder...) {
		if err := s.repo.UpdateWord(ctx, id, s.pending[id]); err != nil {
			errs = append(errs, fmt.Errorf("word %s: %w", id, err))
			continue
		}
		s.removePending(id)
	}
	if s.summary != nil {
		s.summary.PendingSync = len(s.pending)
	}
	return errors.Join(errs...)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Paused reports whether the session is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Current returns a copy of the word in flight.
func (s *Session) Current() (storage.Word, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateComplete {
		return storage.Word{}, false
	}
	return s.cur.word.Clone(), true
}

// Holds reports whether the session will still write the word: it is queued
// for grading or its schedule is waiting to be persisted.
func (s *Session) Holds(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; ok {
		return true
	}
	if s.state == StateComplete {
		return false
	}
	for _, w := range s.queue {
		if w.ID == id {
			return true
		}
	}
	return false
}

// Stats returns the running counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Tracker exposes the time tracker so hosts can report focus changes and
// poll active time.
func (s *Session) Tracker() *tracker.Tracker {
	return s.tracker
}

// Snapshot returns everything a presentation layer needs in one read.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:      s.state,
		Paused:     s.paused,
		Remaining:  len(s.queue),
		Stats:      s.stats,
		ActiveTime: s.tracker.ActiveTime(),
	}
	if s.state != StateComplete {
		w := s.cur.word.Clone()
		v.Current = &w
		v.HintUsed = s.cur.usedHint
		v.Draft = s.cur.draft
		v.AwaitingRating = s.cur.awaitingRating
		v.Attempts = s.cur.retries
	}
	return v
}

// feedback builds the feedback for the current attempt. Must be called with
// mu held.
func (s *Session) feedback() Feedback {
	return Feedback{
		WordID:         s.cur.word.ID,
		Expected:       s.cur.word.Word,
		Answer:         s.cur.answer,
		IsCorrect:      s.cur.isCorrect,
		UsedHint:       s.cur.usedHint,
		Skipped:        s.cur.skipped,
		Quality:        s.cur.quality,
		AwaitingRating: s.cur.awaitingRating,
		Attempts:       s.cur.retries,
		State:          s.state,
	}
}
