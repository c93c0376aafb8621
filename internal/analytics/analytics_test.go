package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type recordingSink struct {
	reviews  []ReviewEvent
	sessions []SessionEvent
	answers  []AnswerEvent
	err      error
}

func (r *recordingSink) RecordReview(_ context.Context, ev ReviewEvent) error {
	r.reviews = append(r.reviews, ev)
	return r.err
}

func (r *recordingSink) RecordSession(_ context.Context, ev SessionEvent) error {
	r.sessions = append(r.sessions, ev)
	return r.err
}

func (r *recordingSink) RecordAnswer(_ context.Context, ev AnswerEvent) error {
	r.answers = append(r.answers, ev)
	return r.err
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingSink{err: boom}
	ok := &recordingSink{}
	f := Fanout{Sinks: []Sink{failing, ok}, Gamification: []GamificationSink{failing, ok}}
	ctx := context.Background()

	err := f.RecordReview(ctx, ReviewEvent{WordID: "w1", Quality: srs.QualityHesitant})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.reviews, 1)
	assert.Len(t, failing.reviews, 1)

	assert.ErrorIs(t, f.RecordSession(ctx, SessionEvent{Reviewed: 2}), boom)
	assert.Len(t, ok.sessions, 1)

	assert.ErrorIs(t, f.RecordAnswer(ctx, AnswerEvent{IsCorrect: true}), boom)
	assert.Len(t, ok.answers, 1)

	assert.NoError(t, Fanout{}.RecordReview(ctx, ReviewEvent{}))
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	ctx := context.Background()

	require.NoError(t, sink.RecordReview(ctx, ReviewEvent{WordID: "w1", IsCorrect: true, Quality: srs.QualityInstant}))
	require.NoError(t, sink.RecordSession(ctx, SessionEvent{Reviewed: 3, Correct: 2, ActiveTime: time.Minute}))
	require.NoError(t, sink.RecordAnswer(ctx, AnswerEvent{IsCorrect: false}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Review recorded", entries[0].Message)
	assert.Equal(t, "w1", entries[0].ContextMap()["word_id"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["reviewed"])
	assert.Equal(t, "analytics", entries[2].LoggerName)

	assert.NoError(t, NewLogSink(nil).RecordReview(ctx, ReviewEvent{}))
}

func TestStoreSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	store := storage.NewFileStorage(path, storage.WithClock(func() time.Time { return testNow }))
	require.NoError(t, store.Load())
	word, err := store.CreateWord(storage.NewWord{Word: "laconic", Meaning: "brief", Category: "adjectives"})
	require.NoError(t, err)

	sink := NewStoreSink(store)
	ctx := context.Background()

	require.NoError(t, sink.RecordReview(ctx, ReviewEvent{
		WordID:    word.ID,
		IsCorrect: true,
		Quality:   srs.QualityComfortable,
		TimeSpent: 4200 * time.Millisecond,
		Category:  "adjectives",
		At:        testNow,
	}))
	require.NoError(t, sink.RecordSession(ctx, SessionEvent{Reviewed: 1, Correct: 1, ActiveTime: 90 * time.Second}))

	reloaded := storage.NewFileStorage(path)
	require.NoError(t, reloaded.Load())

	reviews, err := reloaded.ListReviews(word.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, int64(4200), reviews[0].TimeSpentMs)
	assert.Equal(t, srs.QualityComfortable, reviews[0].Quality)

	sessions, err := reloaded.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(90000), sessions[0].ActiveTimeMs)
	assert.True(t, sessions[0].EndedAt.Equal(testNow))

	err = sink.RecordReview(ctx, ReviewEvent{WordID: "missing"})
	assert.ErrorIs(t, err, storage.ErrWordNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, sink.RecordSession(cancelled, SessionEvent{}), context.Canceled)
}
