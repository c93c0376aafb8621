package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Word is a vocabulary entry together with its scheduling state.
type Word struct {
	ID            string    `json:"id"`
	Word          string    `json:"word"`
	Meaning       string    `json:"meaning"`
	Example       string    `json:"example,omitempty"`
	Phonetic      string    `json:"phonetic,omitempty"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	SRS           srs.State `json:"srs"`
}

// Clone returns a deep copy so snapshots never share slices or pointers
// with the stored record.
func (w Word) Clone() Word {
	c := w
	if w.Tags != nil {
		c.Tags = append([]string(nil), w.Tags...)
	}
	if w.SRS.History != nil {
		c.SRS.History = append([]srs.HistoryEntry(nil), w.SRS.History...)
	}
	if w.SRS.LastQuality != nil {
		q := *w.SRS.LastQuality
		c.SRS.LastQuality = &q
	}
	if w.SRS.LastReviewedAt != nil {
		ts := *w.SRS.LastReviewedAt
		c.SRS.LastReviewedAt = &ts
	}
	if w.SRS.Memory != nil {
		m := *w.SRS.Memory
		c.SRS.Memory = &m
	}
	return c
}

// NewWord holds the fields needed to add a word.
type NewWord struct {
	Word          string
	Meaning       string
	Example       string
	Phonetic      string
	Pronunciation string
	Category      string
	Tags          []string
}

// ReviewLog is one finalized grading, kept for statistics.
type ReviewLog struct {
	ID          string      `json:"id"`
	WordID      string      `json:"word_id"`
	Quality     srs.Quality `json:"quality"`
	IsCorrect   bool        `json:"is_correct"`
	TimeSpentMs int64       `json:"time_spent_ms"`
	Category    string      `json:"category,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// SessionLog is the summary of one completed review session.
type SessionLog struct {
	ID           string    `json:"id"`
	Reviewed     int       `json:"reviewed"`
	Correct      int       `json:"correct"`
	ActiveTimeMs int64     `json:"active_time_ms"`
	EndedAt      time.Time `json:"ended_at"`
}

// VocabStore represents the data structure stored in the JSON file
type VocabStore struct {
	Words       map[string]Word `json:"words"`
	Reviews     []ReviewLog     `json:"reviews"`
	Sessions    []SessionLog    `json:"sessions"`
	LastUpdated time.Time       `json:"last_updated"`
}

var (
	// ErrWordNotFound is returned when a word is not found in the storage
	ErrWordNotFound = errors.New("word not found")
	// ErrInvalidWord is returned when a word is missing its text or meaning.
	ErrInvalidWord = errors.New("word and meaning are required")
)

// Storage represents the storage interface for vocabulary words
type Storage interface {
	// Word operations
	CreateWord(nw NewWord) (Word, error)
	GetWord(id string) (Word, error)
	UpdateWord(word Word) error
	DeleteWord(id string) error
	ListWords(tags []string) ([]Word, error)
	// DueWords returns the words due at now, oldest NextReview first.
	DueWords(now time.Time) ([]Word, error)

	// Review log operations
	AddReview(review ReviewLog) error
	ListReviews(wordID string) ([]ReviewLog, error)

	// Session log operations
	AddSession(session SessionLog) error
	ListSessions() ([]SessionLog, error)

	// File operations
	Load() error
	Save() error
	Close() error
}

// Option configures a storage implementation.
type Option func(*config)

type config struct {
	logger *zap.Logger
	clock  func() time.Time
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for creation and update timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func newWord(nw NewWord, now time.Time) (Word, error) {
	text := strings.TrimSpace(nw.Word)
	meaning := strings.TrimSpace(nw.Meaning)
	if text == "" || meaning == "" {
		return Word{}, ErrInvalidWord
	}
	return Word{
		ID:            uuid.New().String(),
		Word:          text,
		Meaning:       meaning,
		Example:       nw.Example,
		Phonetic:      nw.Phonetic,
		Pronunciation: nw.Pronunciation,
		Category:      nw.Category,
		Tags:          nw.Tags,
		CreatedAt:     now,
		SRS:           srs.NewState(now),
	}, nil
}

// sortDue orders words by NextReview ascending; never-scheduled words come
// first, ties break on creation time then ID.
func sortDue(words []Word) {
	sort.SliceStable(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if !a.SRS.NextReview.Equal(b.SRS.NextReview) {
			return a.SRS.NextReview.Before(b.SRS.NextReview)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// FileStorage implements the Storage interface using a JSON file for persistence
type FileStorage struct {
	filePath string
	store    VocabStore
	mu       sync.RWMutex
	logger   *zap.Logger
	clock    func() time.Time
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(filePath string, opts ...Option) *FileStorage {
	c := newConfig(opts)
	c.logger.Debug("Creating file storage", zap.String("path", filePath))
	return &FileStorage{
		filePath: filePath,
		store:    emptyStore(),
		logger:   c.logger,
		clock:    c.clock,
	}
}

func emptyStore() VocabStore {
	return VocabStore{
		Words:    make(map[string]Word),
		Reviews:  []ReviewLog{},
		Sessions: []SessionLog{},
	}
}

// CreateWord adds a new word, due immediately.
func (fs *FileStorage) CreateWord(nw NewWord) (Word, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.clock()
	word, err := newWord(nw, now)
	if err != nil {
		return Word{}, err
	}

	fs.store.Words[word.ID] = word
	fs.store.LastUpdated = now

	return word.Clone(), nil
}

// GetWord retrieves a word by ID
func (fs *FileStorage) GetWord(id string) (Word, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	word, exists := fs.store.Words[id]
	if !exists {
		return Word{}, ErrWordNotFound
	}

	return word.Clone(), nil
}

// UpdateWord replaces an existing word with the given full record.
func (fs *FileStorage) UpdateWord(word Word) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.store.Words[word.ID]; !exists {
		return ErrWordNotFound
	}

	fs.store.Words[word.ID] = word.Clone()
	fs.store.LastUpdated = fs.clock()

	return nil
}

// DeleteWord deletes a word by ID
func (fs *FileStorage) DeleteWord(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.store.Words[id]; !exists {
		return ErrWordNotFound
	}

	delete(fs.store.Words, id)
	fs.store.LastUpdated = fs.clock()

	return nil
}

// ListWords returns all words, optionally filtered by tags (must contain ANY
// of the tags), ordered by creation time.
func (fs *FileStorage) ListWords(tags []string) ([]Word, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	result := make([]Word, 0, len(fs.store.Words))
	for _, word := range fs.store.Words {
		if hasAnyTag(word.Tags, tags) {
			result = append(result, word.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DueWords implements Storage.
func (fs *FileStorage) DueWords(now time.Time) ([]Word, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var due []Word
	for _, word := range fs.store.Words {
		if word.SRS.IsDue(now) {
			due = append(due, word.Clone())
		}
	}
	sortDue(due)
	return due, nil
}

// hasAnyTag checks if a word has any of the specified tags (OR logic).
func hasAnyTag(wordTags []string, requiredTags []string) bool {
	if len(requiredTags) == 0 {
		return true // No filter means match
	}
	tagSet := make(map[string]bool, len(wordTags))
	for _, tag := range wordTags {
		tagSet[tag] = true
	}
	for _, reqTag := range requiredTags {
		if tagSet[reqTag] {
			return true
		}
	}
	return false
}

// AddReview appends a review log entry for an existing word.
func (fs *FileStorage) AddReview(review ReviewLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.store.Words[review.WordID]; !exists {
		return ErrWordNotFound
	}
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.Timestamp.IsZero() {
		review.Timestamp = fs.clock()
	}

	fs.store.Reviews = append(fs.store.Reviews, review)
	fs.store.LastUpdated = fs.clock()
	return nil
}

// ListReviews returns the review log for one word, or for every word when
// wordID is empty, in insertion order.
func (fs *FileStorage) ListReviews(wordID string) ([]ReviewLog, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if wordID == "" {
		result := make([]ReviewLog, len(fs.store.Reviews))
		copy(result, fs.store.Reviews)
		return result, nil
	}

	if _, exists := fs.store.Words[wordID]; !exists {
		return nil, ErrWordNotFound
	}

	var result []ReviewLog
	for _, review := range fs.store.Reviews {
		if review.WordID == wordID {
			result = append(result, review)
		}
	}
	return result, nil
}

// AddSession appends a session summary.
func (fs *FileStorage) AddSession(session SessionLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.EndedAt.IsZero() {
		session.EndedAt = fs.clock()
	}
	fs.store.Sessions = append(fs.store.Sessions, session)
	fs.store.LastUpdated = fs.clock()
	return nil
}

// ListSessions returns all session summaries in insertion order.
func (fs *FileStorage) ListSessions() ([]SessionLog, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	result := make([]SessionLog, len(fs.store.Sessions))
	copy(result, fs.store.Sessions)
	return result, nil
}

// save is the internal helper for saving data without acquiring the lock again.
// Assumes the lock (write lock) is already held.
func (fs *FileStorage) save() error {
	if fs.store.Words == nil {
		fs.store.Words = make(map[string]Word)
	}
	if fs.store.Reviews == nil {
		fs.store.Reviews = []ReviewLog{}
	}
	if fs.store.Sessions == nil {
		fs.store.Sessions = []SessionLog{}
	}
	fs.store.LastUpdated = fs.clock()

	dataBytes, err := json.MarshalIndent(fs.store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file
	tempFile := fs.filePath + ".tmp"
	if err := os.WriteFile(tempFile, dataBytes, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	// Rename the temporary file to the target file (atomic operation on most systems)
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	fs.logger.Debug("Storage saved",
		zap.String("path", fs.filePath),
		zap.Int("words", len(fs.store.Words)),
		zap.Int("reviews", len(fs.store.Reviews)))
	return nil
}

// Load loads the vocabulary data from the file
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		fs.logger.Info("Storage file not found, initializing empty store", zap.String("path", fs.filePath))
		fs.store = emptyStore()
		if saveErr := fs.save(); saveErr != nil {
			return fmt.Errorf("failed to save initial empty store: %w", saveErr)
		}
		return nil
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		fs.store = emptyStore()
		return nil
	}

	var store VocabStore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("failed to unmarshal storage data: %w", err)
	}

	// Initialize maps/slices if they are nil after unmarshal (e.g., loading older format)
	if store.Words == nil {
		store.Words = make(map[string]Word)
	}
	if store.Reviews == nil {
		store.Reviews = []ReviewLog{}
	}
	if store.Sessions == nil {
		store.Sessions = []SessionLog{}
	}

	fs.store = store
	fs.logger.Debug("Storage loaded",
		zap.String("path", fs.filePath),
		zap.Int("words", len(fs.store.Words)))
	return nil
}

// Save saves the vocabulary data to the file atomically.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}

// Close implements Storage. FileStorage holds no handles; data reaches disk
// through Save.
func (fs *FileStorage) Close() error {
	return nil
}
