package main

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	overviewURI = "vocab://overview"
	tagsURI     = "vocab://tags"
)

const vocabServerInfo = `
This is a spaced repetition vocabulary trainer. When using this server, follow
this review workflow:

1. PRESENTATION PHASE:
   - Call start_review and show the learner the meaning, the masked example
     and any pronunciation details of the card
   - Never reveal the word itself before the learner has answered
   - If the learner asks for help, call show_hint and show the masked hint

2. ANSWER PHASE:
   - Pass the learner's answer to submit_answer exactly as typed
   - If the learner gives up, call skip_word

3. RATING PHASE:
   - When the feedback says awaiting_rating, ask how easy the word was:
     3 = with hesitation, 4 = comfortably, 5 = instantly
   - Call rate_answer with that quality, or continue_review to accept 3

4. RETRY PHASE:
   - When the state is retry_required, show the correct word and ask the
     learner to type it once; pass it to submit_retry
   - The review only moves on once the typed word matches

5. PAUSING:
   - Call pause_review when the learner takes a break and resume_review when
     they come back; answers are refused while paused
   - Call blur_review when the learner switches to something else without
     pausing and focus_review when they return

6. COMPLETION PHASE:
   - When the response carries a summary, congratulate the learner and report
     the words reviewed, accuracy and active minutes
   - If persist_error or warnings are present, tell the learner that progress
     for that word will be retried
   - Offer to add new words with add_word for the ones they struggled with
`

// newServer creates the MCP server and registers every tool and resource.
// Handlers receive a context carrying svc.
func newServer(svc *VocabService) *server.MCPServer {
	s := server.NewMCPServer(
		"Vocabulary MCP",
		"1.0.0",
		server.WithInstructions(vocabServerInfo),
		server.WithResourceCapabilities(true, true),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	bind := func(h server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(reqCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h(withService(reqCtx, svc), request)
		}
	}
	bindResource := func(h server.ResourceHandlerFunc) server.ResourceHandlerFunc {
		return func(reqCtx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return h(withService(reqCtx, svc), request)
		}
	}

	addWordTool := mcp.NewTool("add_word",
		mcp.WithDescription(
			"Add a vocabulary word. Propose the word, its meaning and an example to the learner "+
				"first and only call this tool once they approve. The word is due immediately.",
		),
		mcp.WithString("word",
			mcp.Required(),
			mcp.Description("The word or phrase to learn"),
		),
		mcp.WithString("meaning",
			mcp.Required(),
			mcp.Description("The meaning shown when the word is reviewed"),
		),
		mcp.WithString("example",
			mcp.Description("An example sentence using the word"),
		),
		mcp.WithString("phonetic",
			mcp.Description("Phonetic transcription, e.g. /ˈæp.əl/"),
		),
		mcp.WithString("pronunciation",
			mcp.Description("Pronunciation audio URL or spelling"),
		),
		mcp.WithString("category",
			mcp.Description("Category used for per-category accuracy, e.g. noun"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for grouping words"),
		),
	)

	updateWordTool := mcp.NewTool("update_word",
		mcp.WithDescription("Update the content of a word. Its review schedule is kept."),
		mcp.WithString("word_id",
			mcp.Required(),
			mcp.Description("The ID of the word to update"),
		),
		mcp.WithString("word", mcp.Description("The new word")),
		mcp.WithString("meaning", mcp.Description("The new meaning")),
		mcp.WithString("example", mcp.Description("The new example sentence")),
		mcp.WithString("phonetic", mcp.Description("The new phonetic transcription")),
		mcp.WithString("pronunciation", mcp.Description("The new pronunciation")),
		mcp.WithString("category", mcp.Description("The new category")),
		mcp.WithArray("tags", mcp.Description("The new tags")),
	)

	deleteWordTool := mcp.NewTool("delete_word",
		mcp.WithDescription(
			"Delete a word. Only words the learner has mastered can be deleted unless force is set.",
		),
		mcp.WithString("word_id",
			mcp.Required(),
			mcp.Description("The ID of the word to delete"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Delete even if the word has not been mastered"),
		),
	)

	listWordsTool := mcp.NewTool("list_words",
		mcp.WithDescription("List vocabulary words with their schedule and overall statistics."),
		mcp.WithArray("tags",
			mcp.Description("Only list words with any of these tags"),
		),
		mcp.WithBoolean("due_only",
			mcp.Description("Only list words due for review now"),
		),
	)

	startReviewTool := mcp.NewTool("start_review",
		mcp.WithDescription(
			"Start a review session over the words due now and present the first card. "+
				"Show the meaning and masked example, never the word itself.",
		),
	)

	showHintTool := mcp.NewTool("show_hint",
		mcp.WithDescription(
			"Reveal a hint for the current word. A correct answer after a hint counts as hinted "+
				"and will be reviewed again soon.",
		),
	)

	submitAnswerTool := mcp.NewTool("submit_answer",
		mcp.WithDescription(
			"Submit the learner's answer for the current word. Matching ignores case and surrounding spaces.",
		),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("The answer exactly as the learner typed it"),
		),
	)

	skipWordTool := mcp.NewTool("skip_word",
		mcp.WithDescription("Skip the current word. It is graded as not remembered."),
	)

	rateAnswerTool := mcp.NewTool("rate_answer",
		mcp.WithDescription(
			"Rate a correct answer that is awaiting a rating: 3 = with hesitation, "+
				"4 = comfortably, 5 = instantly.",
		),
		mcp.WithNumber("quality",
			mcp.Required(),
			mcp.Description("Quality from 3 to 5"),
		),
	)

	continueReviewTool := mcp.NewTool("continue_review",
		mcp.WithDescription("Move on from a correct answer, accepting the default rating of 3."),
	)

	submitRetryTool := mcp.NewTool("submit_retry",
		mcp.WithDescription(
			"Submit the learner's retyping of the correct word after a mistake. "+
				"The review moves on once it matches.",
		),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("The word as the learner retyped it"),
		),
	)

	pauseReviewTool := mcp.NewTool("pause_review",
		mcp.WithDescription("Pause the running review. Active time stops counting."),
	)

	resumeReviewTool := mcp.NewTool("resume_review",
		mcp.WithDescription("Resume a paused review."),
	)

	blurReviewTool := mcp.NewTool("blur_review",
		mcp.WithDescription("Report that the learner switched away from the review. Active time stops until focus_review or the next answer."),
	)

	focusReviewTool := mcp.NewTool("focus_review",
		mcp.WithDescription("Report that the learner is back on the review."),
	)

	endReviewTool := mcp.NewTool("end_review",
		mcp.WithDescription("End the running review early and return its summary."),
	)

	s.AddTool(addWordTool, bind(handleAddWord))
	s.AddTool(updateWordTool, bind(handleUpdateWord))
	s.AddTool(deleteWordTool, bind(handleDeleteWord))
	s.AddTool(listWordsTool, bind(handleListWords))
	s.AddTool(startReviewTool, bind(handleStartReview))
	s.AddTool(showHintTool, bind(handleShowHint))
	s.AddTool(submitAnswerTool, bind(handleSubmitAnswer))
	s.AddTool(skipWordTool, bind(handleSkipWord))
	s.AddTool(rateAnswerTool, bind(handleRateAnswer))
	s.AddTool(continueReviewTool, bind(handleContinueReview))
	s.AddTool(submitRetryTool, bind(handleSubmitRetry))
	s.AddTool(pauseReviewTool, bind(handlePauseReview))
	s.AddTool(resumeReviewTool, bind(handleResumeReview))
	s.AddTool(blurReviewTool, bind(handleBlurReview))
	s.AddTool(focusReviewTool, bind(handleFocusReview))
	s.AddTool(endReviewTool, bind(handleEndReview))

	s.AddResource(mcp.NewResource(overviewURI, "Vocabulary overview",
		mcp.WithResourceDescription("Word counts, retention, streak and learner statistics"),
		mcp.WithMIMEType("application/json"),
	), bindResource(handleOverviewResource))
	s.AddResource(mcp.NewResource(tagsURI, "Vocabulary tags",
		mcp.WithResourceDescription("Every tag with its word and due counts"),
		mcp.WithMIMEType("application/json"),
	), bindResource(handleTagsResource))

	return s
}
