package main

import (
	"regexp"
	"strings"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/analytics"
	"github.com/danieldreier/mcp-vocab/internal/session"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
)

// ErrorResponse is returned as tool text when a call fails
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReviewCard is the learner-facing view of the word being reviewed. The
// word itself is never included; the example has it masked.
type ReviewCard struct {
	WordID        string   `json:"word_id"`
	Meaning       string   `json:"meaning"`
	Example       string   `json:"example,omitempty"`
	Phonetic      string   `json:"phonetic,omitempty"`
	Pronunciation string   `json:"pronunciation,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Letters       int      `json:"letters"`
	Hint          string   `json:"hint,omitempty"`
}

// SessionStatus reports where the running review stands
type SessionStatus struct {
	State          session.State `json:"state"`
	Paused         bool          `json:"paused"`
	AwaitingRating bool          `json:"awaiting_rating,omitempty"`
	Attempts       int           `json:"attempts,omitempty"`
	Remaining      int           `json:"remaining"`
	Reviewed       int           `json:"reviewed"`
	Correct        int           `json:"correct"`
	Accuracy       float64       `json:"accuracy"`
	ActiveMinutes  float64       `json:"active_minutes"`
}

// ReviewResponse represents the response structure for the review tools
type ReviewResponse struct {
	Card     *ReviewCard         `json:"card,omitempty"`
	Feedback *session.Feedback   `json:"feedback,omitempty"`
	Status   SessionStatus       `json:"status"`
	Summary  *session.Summary    `json:"summary,omitempty"`
	Stats    *analytics.Overview `json:"stats,omitempty"`

	// Set when the schedule could not be written; the session keeps going.
	PersistError string   `json:"persist_error,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// HintResponse represents the response structure for show_hint
type HintResponse struct {
	WordID string `json:"word_id"`
	Hint   string `json:"hint"`
}

// WordResponse represents the response structure for add_word and update_word
type WordResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Word    storage.Word `json:"word"`
}

// DeleteWordResponse represents the response structure for delete_word
type DeleteWordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WordSummary is a word as shown by list_words
type WordSummary struct {
	ID          string       `json:"id"`
	Word        string       `json:"word"`
	Meaning     string       `json:"meaning"`
	Category    string       `json:"category,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Repetitions int          `json:"repetitions"`
	Interval    int          `json:"interval"`
	EaseFactor  float64      `json:"ease_factor"`
	NextReview  time.Time    `json:"next_review"`
	LastQuality *srs.Quality `json:"last_quality,omitempty"`
	Due         bool         `json:"due"`
}

// ListWordsResponse represents the response structure for list_words
type ListWordsResponse struct {
	Words []WordSummary      `json:"words"`
	Stats analytics.Overview `json:"stats"`
}

func newReviewCard(w storage.Word, hintUsed bool) *ReviewCard {
	card := &ReviewCard{
		WordID:        w.ID,
		Meaning:       w.Meaning,
		Example:       maskWord(w.Example, w.Word),
		Phonetic:      w.Phonetic,
		Pronunciation: w.Pronunciation,
		Category:      w.Category,
		Tags:          w.Tags,
		Letters:       len([]rune(w.Word)),
	}
	if hintUsed {
		card.Hint = session.Hint(w.Word)
	}
	return card
}

func newWordSummary(w storage.Word, now time.Time) WordSummary {
	return WordSummary{
		ID:          w.ID,
		Word:        w.Word,
		Meaning:     w.Meaning,
		Category:    w.Category,
		Tags:        w.Tags,
		Repetitions: w.SRS.Repetitions,
		Interval:    w.SRS.Interval,
		EaseFactor:  w.SRS.EaseFactor,
		NextReview:  w.SRS.NextReview,
		LastQuality: w.SRS.LastQuality,
		Due:         w.SRS.IsDue(now),
	}
}

func newSessionStatus(v session.View) SessionStatus {
	return SessionStatus{
		State:          v.State,
		Paused:         v.Paused,
		AwaitingRating: v.AwaitingRating,
		Attempts:       v.Attempts,
		Remaining:      v.Remaining,
		Reviewed:       v.Stats.Reviewed,
		Correct:        v.Stats.Correct,
		Accuracy:       v.Stats.Accuracy(),
		ActiveMinutes:  v.ActiveTime.Minutes(),
	}
}

// maskWord blanks out every case-insensitive occurrence of word in text.
func maskWord(text, word string) string {
	word = strings.TrimSpace(word)
	if text == "" || word == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(word))
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat("_", len([]rune(m)))
	})
}
