package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/config"
	"github.com/danieldreier/mcp-vocab/internal/session"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// testClock replaces timeNow with a clock the test can move forward.
type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// mockTimeNow swaps timeNow for the duration of the test
func mockTimeNow(t *testing.T, start time.Time) *testClock {
	t.Helper()
	clock := &testClock{now: start}
	original := timeNow
	timeNow = func() time.Time { return clock.now }
	t.Cleanup(func() { timeNow = original })
	return clock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err, "Failed to load default config")
	return cfg
}

// setupTestService creates a service over a temporary JSON file
func setupTestService(t *testing.T) (*VocabService, *storage.FileStorage, *testClock) {
	svc, fileStorage, clock, _ := setupTestServiceFile(t)
	return svc, fileStorage, clock
}

func setupTestServiceFile(t *testing.T) (*VocabService, *storage.FileStorage, *testClock, string) {
	t.Helper()
	clock := mockTimeNow(t, testStart)
	filePath := filepath.Join(t.TempDir(), "vocab-service-test.json")
	fileStorage := storage.NewFileStorage(filePath, storage.WithClock(func() time.Time { return timeNow() }))
	require.NoError(t, fileStorage.Load(), "Failed to initialize storage")

	svc, err := NewVocabService(fileStorage, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc, fileStorage, clock, filePath
}

func mustAddWord(t *testing.T, svc *VocabService, word, meaning string, tags ...string) storage.Word {
	t.Helper()
	w, err := svc.AddWord(storage.NewWord{Word: word, Meaning: meaning, Tags: tags})
	require.NoError(t, err, "Failed to add word %s", word)
	return w
}

func TestNewVocabServiceScheduler(t *testing.T) {
	cfg := testConfig(t)
	for _, kind := range []string{srs.KindBasic, srs.KindAdaptive, srs.KindFSRS} {
		cfg.Scheduler = kind
		svc, err := NewVocabService(storage.NewFileStorage(filepath.Join(t.TempDir(), "v.json")), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, kind, svc.Scheduler.Name())
	}

	cfg.Scheduler = "leitner"
	_, err := NewVocabService(storage.NewFileStorage(filepath.Join(t.TempDir(), "v.json")), cfg, nil)
	assert.Error(t, err)
}

func TestAddWord(t *testing.T) {
	svc, _, _, filePath := setupTestServiceFile(t)

	w := mustAddWord(t, svc, " apple ", "a fruit", "food")
	assert.Equal(t, "apple", w.Word)
	assert.True(t, w.SRS.IsDue(testStart), "new words are due immediately")

	// Saved to disk
	reloaded := storage.NewFileStorage(filePath)
	require.NoError(t, reloaded.Load())
	got, err := reloaded.GetWord(w.ID)
	require.NoError(t, err)
	assert.Equal(t, "a fruit", got.Meaning)

	_, err = svc.AddWord(storage.NewWord{Word: "pear"})
	assert.ErrorIs(t, err, storage.ErrInvalidWord)
}

func TestUpdateWord(t *testing.T) {
	svc, fileStorage, _ := setupTestService(t)
	w := mustAddWord(t, svc, "apple", "a fruit", "food")

	// Give the word a schedule that must survive the update
	w.SRS.Repetitions = 3
	w.SRS.Interval = 600
	require.NoError(t, fileStorage.UpdateWord(w))

	meaning := "a round fruit"
	tags := []string{"food", "a1"}
	updated, err := svc.UpdateWord(w.ID, WordUpdate{Meaning: &meaning, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "apple", updated.Word)
	assert.Equal(t, meaning, updated.Meaning)
	assert.Equal(t, tags, updated.Tags)
	assert.Equal(t, 3, updated.SRS.Repetitions)
	assert.Equal(t, 600, updated.SRS.Interval)

	empty := " "
	_, err = svc.UpdateWord(w.ID, WordUpdate{Word: &empty})
	assert.ErrorIs(t, err, storage.ErrInvalidWord)

	_, err = svc.UpdateWord("missing", WordUpdate{Meaning: &meaning})
	assert.ErrorIs(t, err, storage.ErrWordNotFound)
}

func TestDeleteWord(t *testing.T) {
	svc, fileStorage, _ := setupTestService(t)
	young := mustAddWord(t, svc, "apple", "a fruit")
	mature := mustAddWord(t, svc, "pear", "another fruit")

	mature.SRS.Repetitions = svc.Config.DeleteMinRepetitions
	mature.SRS.Interval = svc.Config.DeleteMinInterval
	require.NoError(t, fileStorage.UpdateWord(mature))

	err := svc.DeleteWord(young.ID, false)
	assert.ErrorIs(t, err, ErrWordNotMature)
	_, err = fileStorage.GetWord(young.ID)
	assert.NoError(t, err, "immature word must not be deleted")

	assert.NoError(t, svc.DeleteWord(mature.ID, false))
	assert.NoError(t, svc.DeleteWord(young.ID, true))

	words, err := fileStorage.ListWords(nil)
	require.NoError(t, err)
	assert.Empty(t, words)

	assert.ErrorIs(t, svc.DeleteWord("missing", true), storage.ErrWordNotFound)
}

func TestListWordsAndOverview(t *testing.T) {
	svc, fileStorage, _ := setupTestService(t)
	mustAddWord(t, svc, "apple", "a fruit", "food")
	later := mustAddWord(t, svc, "run", "to move fast", "verb")
	later.SRS.NextReview = testStart.Add(time.Hour)
	require.NoError(t, fileStorage.UpdateWord(later))

	words, overview, err := svc.ListWords([]string{"food"})
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "apple", words[0].Word)
	assert.Equal(t, 2, overview.TotalWords)
	assert.Equal(t, 1, overview.DueWords)

	due, err := svc.DueWords()
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "apple", due[0].Word)

	stats, err := svc.UserStats()
	require.NoError(t, err)
	assert.Nil(t, stats, "no stats before the first review")
}

func TestSessionLifecycle(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx)
	assert.ErrorIs(t, err, session.ErrNothingToReview)
	_, err = svc.Session()
	assert.ErrorIs(t, err, ErrNoSession)

	mustAddWord(t, svc, "apple", "a fruit")
	sess, err := svc.StartSession(ctx)
	require.NoError(t, err)

	_, err = svc.StartSession(ctx)
	assert.ErrorIs(t, err, ErrSessionActive)

	got, err := svc.Session()
	require.NoError(t, err)
	assert.Same(t, sess, got)

	summary, err := svc.EndSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Reviewed)
	assert.Equal(t, 1, summary.Remaining)

	_, err = svc.EndSession(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionPersistsThroughService(t *testing.T) {
	svc, fileStorage, clock := setupTestService(t)
	ctx := context.Background()
	w := mustAddWord(t, svc, "apple", "a fruit")

	sess, err := svc.StartSession(ctx)
	require.NoError(t, err)
	clock.advance(4 * time.Second)
	_, err = sess.Submit(ctx, "Apple")
	require.NoError(t, err)
	_, err = sess.Rate(ctx, srs.QualityComfortable)
	require.NoError(t, err)

	summary, done := svc.ReleaseIfComplete(ctx, sess)
	require.True(t, done)
	assert.Equal(t, 1, summary.Reviewed)
	assert.Equal(t, 1, summary.Correct)
	_, err = svc.Session()
	assert.ErrorIs(t, err, ErrNoSession, "a completed session is released")

	got, err := fileStorage.GetWord(w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SRS.Repetitions)
	assert.Equal(t, 25, got.SRS.Interval)

	reviews, err := fileStorage.ListReviews(w.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.True(t, reviews[0].IsCorrect)
	assert.Equal(t, srs.QualityComfortable, reviews[0].Quality)

	sessions, err := fileStorage.ListSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Stats now exist and are used for the next session
	stats, err := svc.UserStats()
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1.0, stats.Accuracy)
}

// failingStorage fails every write after the session has started.
type failingStorage struct {
	storage.Storage
	fail bool
}

func (f *failingStorage) UpdateWord(w storage.Word) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Storage.UpdateWord(w)
}

func TestEndSessionRetriesPendingWrites(t *testing.T) {
	svc, fileStorage, _ := setupTestService(t)
	ctx := context.Background()
	mustAddWord(t, svc, "apple", "a fruit")
	mustAddWord(t, svc, "pear", "another fruit")

	flaky := &failingStorage{Storage: fileStorage}
	svc.Storage = flaky

	sess, err := svc.StartSession(ctx)
	require.NoError(t, err)
	cur, ok := sess.Current()
	require.True(t, ok)

	flaky.fail = true
	_, err = sess.Skip(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{cur.ID}, sess.PendingSync())

	flaky.fail = false
	summary, err := svc.EndSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PendingSync)
	assert.Empty(t, sess.PendingSync())

	got, err := fileStorage.GetWord(cur.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SRS.LastQuality)
	assert.Equal(t, srs.QualityBlackout, *got.SRS.LastQuality)
}

func TestDeleteWordDuringSession(t *testing.T) {
	svc, fileStorage, _ := setupTestService(t)
	ctx := context.Background()
	mustAddWord(t, svc, "apple", "a fruit")
	mustAddWord(t, svc, "pear", "another fruit")

	sess, err := svc.StartSession(ctx)
	require.NoError(t, err)
	first, ok := sess.Current()
	require.True(t, ok)

	err = svc.DeleteWord(first.ID, true)
	assert.ErrorIs(t, err, ErrWordInSession)
	_, err = fileStorage.GetWord(first.ID)
	assert.NoError(t, err, "a queued word must not be deleted")

	// Once graded and persisted the word is free to go
	_, err = sess.Skip(ctx)
	require.NoError(t, err)
	require.Empty(t, sess.PendingSync())
	assert.NoError(t, svc.DeleteWord(first.ID, true))

	second, ok := sess.Current()
	require.True(t, ok)
	assert.ErrorIs(t, svc.DeleteWord(second.ID, true), ErrWordInSession)

	_, err = svc.EndSession(ctx)
	require.NoError(t, err)
	assert.NoError(t, svc.DeleteWord(second.ID, true))
}
