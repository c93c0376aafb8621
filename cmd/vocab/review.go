package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danieldreier/mcp-vocab/internal/session"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/tracker"
)

const reviewHelp = `Type the word for each meaning. Commands:
  :hint    show a hint
  :skip    skip the word
  :pause   pause the review
  :resume  resume the review
  :quit    end the review
`

// runReview runs an interactive review reading lines from in. It returns
// when the session completes, input ends, :quit is entered or ctx is done.
func runReview(ctx context.Context, svc *VocabService, in io.Reader, out io.Writer) error {
	sess, err := svc.StartSession(ctx)
	if errors.Is(err, session.ErrNothingToReview) {
		fmt.Fprintln(out, "No words due for review.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprint(out, reviewHelp)
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	prompt(out, sess)
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			// Still record the session when interrupted.
			return endReview(context.WithoutCancel(ctx), svc, out)
		case line, ok = <-lines:
		}
		if !ok {
			return endReview(ctx, svc, out)
		}
		sess.Tracker().Activity(tracker.ActivityInput)

		fb, err := handleLine(ctx, sess, strings.TrimSpace(line), out)
		if errors.Is(err, errQuit) {
			return endReview(ctx, svc, out)
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
		if fb != nil {
			printFeedback(out, *fb)
		}
		if summary, done := svc.ReleaseIfComplete(ctx, sess); done {
			printSummary(out, summary)
			return nil
		}
		prompt(out, sess)
	}
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, sess *session.Session, line string, out io.Writer) (*session.Feedback, error) {
	var (
		fb  session.Feedback
		err error
	)
	switch line {
	case ":quit":
		return nil, errQuit
	case ":hint":
		hint, err := sess.ShowHint()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Hint: %s\n", hint)
		return nil, nil
	case ":pause":
		return nil, sess.Pause()
	case ":resume":
		return nil, sess.Resume()
	case ":skip":
		fb, err = sess.Skip(ctx)
	default:
		state := sess.State()
		if line == "" && state != session.StateGraded {
			return nil, nil
		}
		switch state {
		case session.StateGraded:
			if line == "" {
				fb, err = sess.Continue(ctx)
				break
			}
			q, convErr := strconv.Atoi(line)
			if convErr != nil {
				return nil, fmt.Errorf("enter 3, 4 or 5, or press enter for 3")
			}
			fb, err = sess.Rate(ctx, srs.Quality(q))
		case session.StateRetryRequired:
			fb, err = sess.SubmitRetry(ctx, line)
		default:
			fb, err = sess.Submit(ctx, line)
		}
	}
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

func prompt(out io.Writer, sess *session.Session) {
	view := sess.Snapshot()
	switch {
	case view.Paused:
		fmt.Fprintln(out, "(paused, :resume to continue)")
	case view.State == session.StateGraded && view.AwaitingRating:
		fmt.Fprint(out, "How easy was it? 3 hesitant, 4 comfortable, 5 instant [3]: ")
	case view.State == session.StateRetryRequired:
		fmt.Fprint(out, "Type the word to continue: ")
	case view.State == session.StatePresenting && view.Current != nil:
		card := newReviewCard(*view.Current, view.HintUsed)
		fmt.Fprintf(out, "\n[%d left] %s\n", view.Remaining, card.Meaning)
		if card.Example != "" {
			fmt.Fprintf(out, "  e.g. %s\n", card.Example)
		}
		if card.Phonetic != "" {
			fmt.Fprintf(out, "  %s\n", card.Phonetic)
		}
		fmt.Fprint(out, "> ")
	}
}

func printFeedback(out io.Writer, fb session.Feedback) {
	switch {
	case fb.Attempts > 0 && fb.State != session.StateRetryRequired:
		fmt.Fprintln(out, "Got it.")
	case fb.Skipped:
		fmt.Fprintf(out, "Skipped. The word was %q.\n", fb.Expected)
	case fb.IsCorrect && fb.State == session.StateGraded:
		fmt.Fprintln(out, "Correct!")
	case fb.IsCorrect:
		fmt.Fprintf(out, "Correct (%s).\n", fb.Quality)
	case fb.State == session.StateRetryRequired:
		fmt.Fprintf(out, "Not quite. The word is %q.\n", fb.Expected)
	default:
		fmt.Fprintf(out, "Incorrect. The word was %q.\n", fb.Expected)
	}
	if fb.PersistErr != nil {
		fmt.Fprintf(out, "! progress not saved yet: %v\n", fb.PersistErr)
	}
}

func printSummary(out io.Writer, s session.Summary) {
	fmt.Fprintf(out, "\nReview complete: %d reviewed, %d correct (%.0f%%), %.1f active minutes.\n",
		s.Reviewed, s.Correct, s.Accuracy*100, s.ActiveTime.Minutes())
	if s.PendingSync > 0 {
		fmt.Fprintf(out, "%d words could not be saved.\n", s.PendingSync)
	}
}

func endReview(ctx context.Context, svc *VocabService, out io.Writer) error {
	summary, err := svc.EndSession(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}
