// Package main provides the vocabulary MCP service and command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danieldreier/mcp-vocab/internal/session"
	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

type serviceKey struct{}

// withService returns a context carrying the service for the handlers.
func withService(ctx context.Context, s *VocabService) context.Context {
	return context.WithValue(ctx, serviceKey{}, s)
}

func serviceFrom(ctx context.Context) (*VocabService, bool) {
	s, ok := ctx.Value(serviceKey{}).(*VocabService)
	return s, ok && s != nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func errorResult(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return jsonResult(ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	v, ok := request.Params.Arguments[name].(string)
	return v, ok
}

func optionalString(request mcp.CallToolRequest, name string) *string {
	if v, ok := request.Params.Arguments[name].(string); ok {
		return &v
	}
	return nil
}

func stringsArg(request mcp.CallToolRequest, name string) ([]string, bool) {
	raw, ok := request.Params.Arguments[name].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// handleAddWord handles the add_word tool request. New words are due
// immediately.
func handleAddWord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}

	word, ok := stringArg(request, "word")
	if !ok {
		return errorResult("Missing required parameter: word")
	}
	meaning, ok := stringArg(request, "meaning")
	if !ok {
		return errorResult("Missing required parameter: meaning")
	}
	nw := storage.NewWord{Word: word, Meaning: meaning}
	nw.Example, _ = stringArg(request, "example")
	nw.Phonetic, _ = stringArg(request, "phonetic")
	nw.Pronunciation, _ = stringArg(request, "pronunciation")
	nw.Category, _ = stringArg(request, "category")
	nw.Tags, _ = stringsArg(request, "tags")

	created, err := s.AddWord(nw)
	if err != nil {
		return errorResult("Error adding word: %v", err)
	}
	return jsonResult(WordResponse{
		Success: true,
		Message: "Word added successfully",
		Word:    created,
	})
}

// handleUpdateWord handles the update_word tool request. Only the given
// fields change; the schedule is kept.
func handleUpdateWord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}

	id, ok := stringArg(request, "word_id")
	if !ok {
		return errorResult("Missing required parameter: word_id")
	}
	upd := WordUpdate{
		Word:          optionalString(request, "word"),
		Meaning:       optionalString(request, "meaning"),
		Example:       optionalString(request, "example"),
		Phonetic:      optionalString(request, "phonetic"),
		Pronunciation: optionalString(request, "pronunciation"),
		Category:      optionalString(request, "category"),
	}
	if tags, ok := stringsArg(request, "tags"); ok {
		upd.Tags = &tags
	}

	word, err := s.UpdateWord(id, upd)
	if err != nil {
		return errorResult("Error updating word: %v", err)
	}
	return jsonResult(WordResponse{
		Success: true,
		Message: "Word updated successfully",
		Word:    word,
	})
}

// handleDeleteWord handles the delete_word tool request.
func handleDeleteWord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}

	id, ok := stringArg(request, "word_id")
	if !ok {
		return errorResult("Missing required parameter: word_id")
	}
	force, _ := request.Params.Arguments["force"].(bool)

	if err := s.DeleteWord(id, force); err != nil {
		if errors.Is(err, ErrWordNotMature) {
			return errorResult("%v. Pass force=true to delete it anyway", err)
		}
		if errors.Is(err, ErrWordInSession) {
			return errorResult("%v. Finish or end the review first", err)
		}
		return errorResult("Error deleting word: %v", err)
	}
	return jsonResult(DeleteWordResponse{
		Success: true,
		Message: "Word " + id + " deleted successfully",
	})
}

// handleListWords handles the list_words tool request.
func handleListWords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}

	tags, _ := stringsArg(request, "tags")
	dueOnly, _ := request.Params.Arguments["due_only"].(bool)

	words, overview, err := s.ListWords(tags)
	if err != nil {
		return errorResult("Error listing words: %v", err)
	}

	now := timeNow()
	response := ListWordsResponse{Words: make([]WordSummary, 0, len(words)), Stats: overview}
	for _, w := range words {
		if dueOnly && !w.SRS.IsDue(now) {
			continue
		}
		response.Words = append(response.Words, newWordSummary(w, now))
	}
	return jsonResult(response)
}

// handleStartReview handles the start_review tool request by starting a
// session over the words due now and presenting the first one.
func handleStartReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}

	sess, err := s.StartSession(ctx)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNothingToReview):
			overview, _ := s.Overview()
			type nothingDue struct {
				Error string      `json:"error"`
				Stats interface{} `json:"stats"`
			}
			return jsonResult(nothingDue{Error: "No words due for review", Stats: overview})
		case errors.Is(err, ErrSessionActive):
			return errorResult("A review is already running. Continue it or call end_review first")
		}
		return errorResult("Error starting review: %v", err)
	}
	return reviewResult(ctx, s, sess, nil)
}

// reviewResult builds the response every review tool returns: the feedback
// for the last input, the card now presented and, once the session has
// completed, its summary.
func reviewResult(ctx context.Context, s *VocabService, sess *session.Session, fb *session.Feedback) (*mcp.CallToolResult, error) {
	view := sess.Snapshot()
	response := ReviewResponse{
		Feedback: fb,
		Status:   newSessionStatus(view),
	}
	if fb != nil {
		if fb.PersistErr != nil {
			response.PersistError = fb.PersistErr.Error()
		}
		for _, w := range fb.Warnings {
			response.Warnings = append(response.Warnings, w.Error())
		}
	}
	if view.Current != nil && view.State != session.StateComplete {
		response.Card = newReviewCard(*view.Current, view.HintUsed)
	}
	if summary, done := s.ReleaseIfComplete(ctx, sess); done {
		response.Summary = &summary
		if overview, err := s.Overview(); err == nil {
			response.Stats = &overview
		}
	}
	return jsonResult(response)
}

// activeSession fetches the running session or writes the error result.
func activeSession(ctx context.Context) (*VocabService, *session.Session, *mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		res, err := errorResult("Service not available")
		return nil, nil, res, err
	}
	sess, err := s.Session()
	if err != nil {
		res, err := errorResult("No review is running. Call start_review first")
		return nil, nil, res, err
	}
	return s, sess, nil, nil
}

func inputError(s *VocabService, action string, err error) (*mcp.CallToolResult, error) {
	s.Logger.Debug("Review input rejected", zap.String("action", action), zap.Error(err))
	switch {
	case errors.Is(err, session.ErrPaused):
		return errorResult("The review is paused. Call resume_review first")
	case errors.Is(err, session.ErrSessionComplete):
		return errorResult("The review is complete")
	}
	return errorResult("Cannot %s now: %v", action, err)
}

// handleShowHint handles the show_hint tool request. Using a hint caps the
// quality of the answer.
func handleShowHint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	hint, err := sess.ShowHint()
	if err != nil {
		return inputError(s, "show a hint", err)
	}
	word, _ := sess.Current()
	return jsonResult(HintResponse{WordID: word.ID, Hint: hint})
}

// handleSubmitAnswer handles the submit_answer tool request.
func handleSubmitAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	answer, ok := stringArg(request, "answer")
	if !ok {
		return errorResult("Missing required parameter: answer")
	}
	fb, err := sess.Submit(ctx, answer)
	if err != nil {
		return inputError(s, "submit an answer", err)
	}
	return reviewResult(ctx, s, sess, &fb)
}

// handleSkipWord handles the skip_word tool request.
func handleSkipWord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	fb, err := sess.Skip(ctx)
	if err != nil {
		return inputError(s, "skip", err)
	}
	return reviewResult(ctx, s, sess, &fb)
}

// handleRateAnswer handles the rate_answer tool request for a correct answer
// awaiting a rating.
func handleRateAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	qualityFloat, ok := request.Params.Arguments["quality"].(float64)
	if !ok {
		return errorResult("Missing required parameter: quality")
	}
	if qualityFloat != math.Trunc(qualityFloat) {
		return errorResult("Quality must be a whole number from %d to %d", srs.QualityHesitant, srs.QualityInstant)
	}
	if qualityFloat < float64(srs.QualityHesitant) || qualityFloat > float64(srs.QualityInstant) {
		return errorResult("Quality must be between %d and %d", srs.QualityHesitant, srs.QualityInstant)
	}
	fb, err := sess.Rate(ctx, srs.Quality(qualityFloat))
	if err != nil {
		return inputError(s, "rate", err)
	}
	return reviewResult(ctx, s, sess, &fb)
}

// handleContinueReview handles the continue_review tool request, accepting
// the default rating.
func handleContinueReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	fb, err := sess.Continue(ctx)
	if err != nil {
		return inputError(s, "continue", err)
	}
	return reviewResult(ctx, s, sess, &fb)
}

// handleSubmitRetry handles the submit_retry tool request. The learner must
// type the correct word before the review moves on.
func handleSubmitRetry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	typed, ok := stringArg(request, "answer")
	if !ok {
		return errorResult("Missing required parameter: answer")
	}
	fb, err := sess.SubmitRetry(ctx, typed)
	if err != nil {
		return inputError(s, "retry", err)
	}
	return reviewResult(ctx, s, sess, &fb)
}

// handlePauseReview handles the pause_review tool request.
func handlePauseReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	if err := sess.Pause(); err != nil {
		return inputError(s, "pause", err)
	}
	return reviewResult(ctx, s, sess, nil)
}

// handleResumeReview handles the resume_review tool request.
func handleResumeReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	if err := sess.Resume(); err != nil {
		return inputError(s, "resume", err)
	}
	return reviewResult(ctx, s, sess, nil)
}

// handleBlurReview handles the blur_review tool request. The learner left the
// review, so active time stops until focus_review or the next answer.
func handleBlurReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	sess.Tracker().Blur()
	return reviewResult(ctx, s, sess, nil)
}

// handleFocusReview handles the focus_review tool request.
func handleFocusReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, sess, res, err := activeSession(ctx)
	if sess == nil {
		return res, err
	}
	sess.Tracker().Focus()
	return reviewResult(ctx, s, sess, nil)
}

// handleEndReview handles the end_review tool request. A graded word is
// finalized with the default rating before the summary is built.
func handleEndReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return errorResult("Service not available")
	}
	summary, err := s.EndSession(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return errorResult("No review is running")
		}
		return errorResult("Error ending review: %v", err)
	}
	response := ReviewResponse{
		Status: SessionStatus{
			State:         session.StateComplete,
			Remaining:     summary.Remaining,
			Reviewed:      summary.Reviewed,
			Correct:       summary.Correct,
			Accuracy:      summary.Accuracy,
			ActiveMinutes: summary.ActiveTime.Minutes(),
		},
		Summary: &summary,
	}
	if overview, err := s.Overview(); err == nil {
		response.Stats = &overview
	}
	return jsonResult(response)
}

func resourceText(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error marshaling %s to JSON: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// handleOverviewResource returns vocabulary statistics and the learner stats
// the adaptive scheduler works from.
func handleOverviewResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("service not available")
	}
	overview, err := s.Overview()
	if err != nil {
		return nil, err
	}
	stats, err := s.UserStats()
	if err != nil {
		return nil, err
	}
	type overviewResource struct {
		Overview  interface{}    `json:"overview"`
		UserStats *srs.UserStats `json:"user_stats,omitempty"`
		Scheduler string         `json:"scheduler"`
	}
	return resourceText(overviewURI, overviewResource{
		Overview:  overview,
		UserStats: stats,
		Scheduler: s.Scheduler.Name(),
	})
}

// TagInfo is one entry of the tags resource
type TagInfo struct {
	Tag       string `json:"tag"`
	WordCount int    `json:"word_count"`
	DueCount  int    `json:"due_count"`
}

// handleTagsResource returns every tag with its word and due counts.
func handleTagsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("service not available")
	}
	words, err := s.Storage.ListWords(nil)
	if err != nil {
		return nil, fmt.Errorf("error listing words: %w", err)
	}

	now := timeNow()
	counts := make(map[string]*TagInfo)
	for _, w := range words {
		for _, tag := range w.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			info, ok := counts[tag]
			if !ok {
				info = &TagInfo{Tag: tag}
				counts[tag] = info
			}
			info.WordCount++
			if w.SRS.IsDue(now) {
				info.DueCount++
			}
		}
	}

	tags := make([]TagInfo, 0, len(counts))
	for _, info := range counts {
		tags = append(tags, *info)
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Tag < tags[j].Tag
	})
	return resourceText(tagsURI, tags)
}
