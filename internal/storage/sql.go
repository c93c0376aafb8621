package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	gofsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS words (
		id TEXT PRIMARY KEY,
		word TEXT NOT NULL,
		meaning TEXT NOT NULL,
		example TEXT NOT NULL DEFAULT '',
		phonetic TEXT NOT NULL DEFAULT '',
		pronunciation TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		repetitions INTEGER NOT NULL DEFAULT 0,
		interval_minutes INTEGER NOT NULL DEFAULT 10,
		ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
		next_review BIGINT NOT NULL DEFAULT 0,
		last_quality INTEGER,
		last_reviewed_at BIGINT,
		review_history TEXT NOT NULL DEFAULT '[]',
		memory TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_words_next_review ON words (next_review)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		word_id TEXT NOT NULL REFERENCES words (id) ON DELETE CASCADE,
		quality INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL,
		time_spent_ms BIGINT NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		reviewed_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_word_id ON reviews (word_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		reviewed INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		active_time_ms BIGINT NOT NULL,
		ended_at BIGINT NOT NULL
	)`,
}

const wordColumns = `id, word, meaning, example, phonetic, pronunciation, category, tags, created_at,
	repetitions, interval_minutes, ease_factor, next_review, last_quality, last_reviewed_at,
	review_history, memory`

type wordRow struct {
	ID             string         `db:"id"`
	Word           string         `db:"word"`
	Meaning        string         `db:"meaning"`
	Example        string         `db:"example"`
	Phonetic       string         `db:"phonetic"`
	Pronunciation  string         `db:"pronunciation"`
	Category       string         `db:"category"`
	Tags           string         `db:"tags"`
	CreatedAt      int64          `db:"created_at"`
	Repetitions    int            `db:"repetitions"`
	Interval       int            `db:"interval_minutes"`
	EaseFactor     float64        `db:"ease_factor"`
	NextReview     int64          `db:"next_review"`
	LastQuality    sql.NullInt64  `db:"last_quality"`
	LastReviewedAt sql.NullInt64  `db:"last_reviewed_at"`
	History        string         `db:"review_history"`
	Memory         sql.NullString `db:"memory"`
}

type reviewRow struct {
	ID          string `db:"id"`
	WordID      string `db:"word_id"`
	Quality     int    `db:"quality"`
	IsCorrect   bool   `db:"is_correct"`
	TimeSpentMs int64  `db:"time_spent_ms"`
	Category    string `db:"category"`
	ReviewedAt  int64  `db:"reviewed_at"`
}

type sessionRow struct {
	ID           string `db:"id"`
	Reviewed     int    `db:"reviewed"`
	Correct      int    `db:"correct"`
	ActiveTimeMs int64  `db:"active_time_ms"`
	EndedAt      int64  `db:"ended_at"`
}

// toMillis stores an instant as epoch milliseconds; the zero time maps to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toWordRow(w Word) (wordRow, error) {
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return wordRow{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	history := w.SRS.History
	if history == nil {
		history = []srs.HistoryEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return wordRow{}, fmt.Errorf("failed to encode review history: %w", err)
	}

	row := wordRow{
		ID:            w.ID,
		Word:          w.Word,
		Meaning:       w.Meaning,
		Example:       w.Example,
		Phonetic:      w.Phonetic,
		Pronunciation: w.Pronunciation,
		Category:      w.Category,
		Tags:          string(tagsJSON),
		CreatedAt:     toMillis(w.CreatedAt),
		Repetitions:   w.SRS.Repetitions,
		Interval:      w.SRS.Interval,
		EaseFactor:    w.SRS.EaseFactor,
		NextReview:    toMillis(w.SRS.NextReview),
		History:       string(historyJSON),
	}
	if w.SRS.LastQuality != nil {
		row.LastQuality = sql.NullInt64{Int64: int64(*w.SRS.LastQuality), Valid: true}
	}
	if w.SRS.LastReviewedAt != nil {
		row.LastReviewedAt = sql.NullInt64{Int64: toMillis(*w.SRS.LastReviewedAt), Valid: true}
	}
	if w.SRS.Memory != nil {
		memoryJSON, err := json.Marshal(w.SRS.Memory)
		if err != nil {
			return wordRow{}, fmt.Errorf("failed to encode memory state: %w", err)
		}
		row.Memory = sql.NullString{String: string(memoryJSON), Valid: true}
	}
	return row, nil
}

func (r wordRow) toWord() (Word, error) {
	w := Word{
		ID:            r.ID,
		Word:          r.Word,
		Meaning:       r.Meaning,
		Example:       r.Example,
		Phonetic:      r.Phonetic,
		Pronunciation: r.Pronunciation,
		Category:      r.Category,
		CreatedAt:     fromMillis(r.CreatedAt),
		SRS: srs.State{
			Repetitions: r.Repetitions,
			Interval:    r.Interval,
			EaseFactor:  r.EaseFactor,
			NextReview:  fromMillis(r.NextReview),
		},
	}
	if err := json.Unmarshal([]byte(r.Tags), &w.Tags); err != nil {
		return Word{}, fmt.Errorf("failed to decode tags of word %s: %w", r.ID, err)
	}
	if len(w.Tags) == 0 {
		w.Tags = nil
	}
	if err := json.Unmarshal([]byte(r.History), &w.SRS.History); err != nil {
		return Word{}, fmt.Errorf("failed to decode review history of word %s: %w", r.ID, err)
	}
	if len(w.SRS.History) == 0 {
		w.SRS.History = nil
	}
	if r.LastQuality.Valid {
		q := srs.Quality(r.LastQuality.Int64)
		w.SRS.LastQuality = &q
	}
	if r.LastReviewedAt.Valid {
		ts := fromMillis(r.LastReviewedAt.Int64)
		w.SRS.LastReviewedAt = &ts
	}
	if r.Memory.Valid {
		var memory gofsrs.Card
		if err := json.Unmarshal([]byte(r.Memory.String), &memory); err != nil {
			return Word{}, fmt.Errorf("failed to decode memory state of word %s: %w", r.ID, err)
		}
		w.SRS.Memory = &memory
	}
	return w, nil
}

// SQLStorage implements Storage on top of a SQL database through sqlx.
// SQLite and PostgreSQL are supported; every write is committed immediately.
type SQLStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
	clock  func() time.Time
}

var _ Storage = (*SQLStorage)(nil)

// NewSQLStorage opens the database and creates the schema if needed.
func NewSQLStorage(driver, dsn string, opts ...Option) (*SQLStorage, error) {
	c := newConfig(opts)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite doesn't support multiple writers; a single connection also
		// keeps ":memory:" databases alive across calls.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	c.logger.Debug("SQL storage ready", zap.String("driver", driver))
	return &SQLStorage{db: db, logger: c.logger, clock: c.clock}, nil
}

// CreateWord implements Storage.
func (s *SQLStorage) CreateWord(nw NewWord) (Word, error) {
	word, err := newWord(nw, s.clock().UTC().Truncate(time.Millisecond))
	if err != nil {
		return Word{}, err
	}
	row, err := toWordRow(word)
	if err != nil {
		return Word{}, err
	}

	query := `INSERT INTO words (` + wordColumns + `) VALUES (
		:id, :word, :meaning, :example, :phonetic, :pronunciation, :category, :tags, :created_at,
		:repetitions, :interval_minutes, :ease_factor, :next_review, :last_quality, :last_reviewed_at,
		:review_history, :memory)`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return Word{}, fmt.Errorf("failed to insert word: %w", err)
	}
	return word, nil
}

// GetWord implements Storage.
func (s *SQLStorage) GetWord(id string) (Word, error) {
	var row wordRow
	err := s.db.Get(&row, s.db.Rebind(`SELECT `+wordColumns+` FROM words WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Word{}, ErrWordNotFound
	}
	if err != nil {
		return Word{}, fmt.Errorf("failed to get word: %w", err)
	}
	return row.toWord()
}

// UpdateWord implements Storage.
func (s *SQLStorage) UpdateWord(word Word) error {
	row, err := toWordRow(word)
	if err != nil {
		return err
	}

	result, err := s.db.NamedExec(`UPDATE words SET
		word = :word, meaning = :meaning, example = :example, phonetic = :phonetic,
		pronunciation = :pronunciation, category = :category, tags = :tags,
		repetitions = :repetitions, interval_minutes = :interval_minutes, ease_factor = :ease_factor,
		next_review = :next_review, last_quality = :last_quality, last_reviewed_at = :last_reviewed_at,
		review_history = :review_history, memory = :memory
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update word: %w", err)
	}
	return requireAffected(result)
}

// DeleteWord implements Storage.
func (s *SQLStorage) DeleteWord(id string) error {
	result, err := s.db.Exec(s.db.Rebind(`DELETE FROM words WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete word: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrWordNotFound
	}
	return nil
}

func (s *SQLStorage) selectWords(query string, args ...any) ([]Word, error) {
	var rows []wordRow
	if err := s.db.Select(&rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list words: %w", err)
	}
	words := make([]Word, 0, len(rows))
	for _, row := range rows {
		w, err := row.toWord()
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}

// ListWords implements Storage.
func (s *SQLStorage) ListWords(tags []string) ([]Word, error) {
	all, err := s.selectWords(`SELECT ` + wordColumns + ` FROM words ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return all, nil
	}
	result := make([]Word, 0, len(all))
	for _, w := range all {
		if hasAnyTag(w.Tags, tags) {
			result = append(result, w)
		}
	}
	return result, nil
}

// DueWords implements Storage.
func (s *SQLStorage) DueWords(now time.Time) ([]Word, error) {
	return s.selectWords(`SELECT `+wordColumns+` FROM words
		WHERE next_review <= ?
		ORDER BY next_review ASC, created_at ASC, id ASC`, toMillis(now))
}

// AddReview implements Storage.
func (s *SQLStorage) AddReview(review ReviewLog) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.Timestamp.IsZero() {
		review.Timestamp = s.clock()
	}
	if _, err := s.GetWord(review.WordID); err != nil {
		return err
	}

	_, err := s.db.NamedExec(`INSERT INTO reviews (id, word_id, quality, is_correct, time_spent_ms, category, reviewed_at)
		VALUES (:id, :word_id, :quality, :is_correct, :time_spent_ms, :category, :reviewed_at)`,
		reviewRow{
			ID:          review.ID,
			WordID:      review.WordID,
			Quality:     int(review.Quality),
			IsCorrect:   review.IsCorrect,
			TimeSpentMs: review.TimeSpentMs,
			Category:    review.Category,
			ReviewedAt:  toMillis(review.Timestamp),
		})
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// ListReviews implements Storage.
func (s *SQLStorage) ListReviews(wordID string) ([]ReviewLog, error) {
	var rows []reviewRow
	var err error
	if wordID == "" {
		err = s.db.Select(&rows, `SELECT * FROM reviews ORDER BY reviewed_at ASC, id ASC`)
	} else {
		if _, getErr := s.GetWord(wordID); getErr != nil {
			return nil, getErr
		}
		err = s.db.Select(&rows, s.db.Rebind(`SELECT * FROM reviews WHERE word_id = ? ORDER BY reviewed_at ASC, id ASC`), wordID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	reviews := make([]ReviewLog, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, ReviewLog{
			ID:          r.ID,
			WordID:      r.WordID,
			Quality:     srs.Quality(r.Quality),
			IsCorrect:   r.IsCorrect,
			TimeSpentMs: r.TimeSpentMs,
			Category:    r.Category,
			Timestamp:   fromMillis(r.ReviewedAt),
		})
	}
	return reviews, nil
}

// AddSession implements Storage.
func (s *SQLStorage) AddSession(session SessionLog) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.EndedAt.IsZero() {
		session.EndedAt = s.clock()
	}
	_, err := s.db.NamedExec(`INSERT INTO sessions (id, reviewed, correct, active_time_ms, ended_at)
		VALUES (:id, :reviewed, :correct, :active_time_ms, :ended_at)`,
		sessionRow{
			ID:           session.ID,
			Reviewed:     session.Reviewed,
			Correct:      session.Correct,
			ActiveTimeMs: session.ActiveTimeMs,
			EndedAt:      toMillis(session.EndedAt),
		})
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// ListSessions implements Storage.
func (s *SQLStorage) ListSessions() ([]SessionLog, error) {
	var rows []sessionRow
	if err := s.db.Select(&rows, `SELECT * FROM sessions ORDER BY ended_at ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]SessionLog, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, SessionLog{
			ID:           r.ID,
			Reviewed:     r.Reviewed,
			Correct:      r.Correct,
			ActiveTimeMs: r.ActiveTimeMs,
			EndedAt:      fromMillis(r.EndedAt),
		})
	}
	return sessions, nil
}

// Load implements Storage. The schema is created when the storage is opened.
func (s *SQLStorage) Load() error {
	return s.db.Ping()
}

// Save implements Storage. Writes are committed as they happen.
func (s *SQLStorage) Save() error {
	return nil
}

// Close closes the database.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
