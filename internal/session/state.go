package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
)

// State is the position of a session in its review cycle.
type State int

const (
	// StatePresenting shows the current word and waits for an answer or a skip.
	StatePresenting State = iota
	// StateGraded holds a correct unaided answer until the learner rates it.
	StateGraded
	// StateRetryRequired waits for the learner to retype the word.
	StateRetryRequired
	// StateAdvancing persists the graded word and moves to the next one.
	StateAdvancing
	// StateComplete is terminal.
	StateComplete
)

var stateNames = map[State]string{
	StatePresenting:    "presenting",
	StateGraded:        "graded",
	StateRetryRequired: "retry_required",
	StateAdvancing:     "advancing",
	StateComplete:      "complete",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

var (
	// ErrNothingToReview is returned by Start when no word is due.
	ErrNothingToReview = errors.New("nothing to review")
	// ErrInvalidTransition is returned for an input the current state does
	// not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPaused is returned for any input but Resume and End while paused.
	ErrPaused = errors.New("session is paused")
	// ErrSessionComplete is returned for any input after completion.
	ErrSessionComplete = errors.New("session is complete")
)

// Stats counts graded words. A word is counted once, when it is graded.
type Stats struct {
	Reviewed  int       `json:"reviewed"`
	Correct   int       `json:"correct"`
	StartedAt time.Time `json:"started_at"`
}

// Accuracy returns Correct/Reviewed, or 0 before the first grading.
func (s Stats) Accuracy() float64 {
	if s.Reviewed == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Reviewed)
}

// Feedback describes the outcome of one input.
type Feedback struct {
	WordID    string      `json:"word_id"`
	Expected  string      `json:"expected"`
	Answer    string      `json:"answer,omitempty"`
	IsCorrect bool        `json:"is_correct"`
	UsedHint  bool        `json:"used_hint"`
	Skipped   bool        `json:"skipped,omitempty"`
	Quality   srs.Quality `json:"quality"`
	// AwaitingRating is set when a correct unaided answer waits for Rate or
	// Continue.
	AwaitingRating bool `json:"awaiting_rating,omitempty"`
	// Attempts counts retype attempts for the current word.
	Attempts int   `json:"attempts,omitempty"`
	State    State `json:"state"`
	// Scheduled is the word's new schedule once it has been finalized.
	Scheduled *srs.State `json:"scheduled,omitempty"`

	// PersistErr is set when the new schedule could not be written. The word
	// is kept for RetrySync and the session still advances.
	PersistErr error `json:"-"`
	// Warnings collects analytics failures.
	Warnings []error `json:"-"`
}

// Summary is the completion report of a session.
type Summary struct {
	Reviewed   int           `json:"reviewed"`
	Correct    int           `json:"correct"`
	Accuracy   float64       `json:"accuracy"`
	ActiveTime time.Duration `json:"active_time"`
	WallTime   time.Duration `json:"wall_time"`
	// Remaining is the number of words left ungraded by an early end.
	Remaining   int       `json:"remaining"`
	PendingSync int       `json:"pending_sync"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// View is a read-only snapshot for rendering.
type View struct {
	State          State         `json:"state"`
	Paused         bool          `json:"paused"`
	Current        *storage.Word `json:"current,omitempty"`
	HintUsed       bool          `json:"hint_used"`
	Draft          string        `json:"draft,omitempty"`
	AwaitingRating bool          `json:"awaiting_rating,omitempty"`
	Attempts       int           `json:"attempts,omitempty"`
	Remaining      int           `json:"remaining"`
	Stats          Stats         `json:"stats"`
	ActiveTime     time.Duration `json:"active_time"`
}
