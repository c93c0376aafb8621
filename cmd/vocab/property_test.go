package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"testing"

	"github.com/danieldreier/mcp-vocab/internal/storage"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- System Under Test Definition ---

// vocabSUT drives the tool handlers of one service over a fresh data file.
type vocabSUT struct {
	ctx context.Context
	ids map[string]string // word -> real ID
}

func (s *vocabSUT) call(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := handler(s.ctx, req)
	if err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("%s returned no content", name)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "", fmt.Errorf("%s returned %T", name, result.Content[0])
	}
	return text.Text, nil
}

// --- State Definition ---

// modelState is the set of words that should exist. Every word is due.
type modelState map[string]bool

func (m modelState) with(word string, present bool) modelState {
	next := make(modelState, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	if present {
		next[word] = true
	} else {
		delete(next, word)
	}
	return next
}

func (m modelState) words() []string {
	out := make([]string, 0, len(m))
	for w := range m {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// --- Commands ---

type addWordCmd struct{ Word string }

func (c addWordCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*vocabSUT)
	text, err := s.call(handleAddWord, "add_word", map[string]interface{}{
		"word":    c.Word,
		"meaning": "meaning of " + c.Word,
	})
	if err != nil {
		return err
	}
	var resp WordResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil || !resp.Success {
		return fmt.Errorf("add_word failed: %s", text)
	}
	s.ids[c.Word] = resp.Word.ID
	return nil
}

func (c addWordCmd) NextState(state commands.State) commands.State {
	return state.(modelState).with(c.Word, true)
}

func (c addWordCmd) PreCondition(state commands.State) bool {
	return !state.(modelState)[c.Word]
}

func (c addWordCmd) PostCondition(_ commands.State, result commands.Result) *gopter.PropResult {
	return resultOK(result)
}

func (c addWordCmd) String() string { return fmt.Sprintf("AddWord(%s)", c.Word) }

type deleteWordCmd struct{ Word string }

func (c deleteWordCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*vocabSUT)
	text, err := s.call(handleDeleteWord, "delete_word", map[string]interface{}{
		"word_id": s.ids[c.Word],
		"force":   true,
	})
	if err != nil {
		return err
	}
	var resp DeleteWordResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil || !resp.Success {
		return fmt.Errorf("delete_word failed: %s", text)
	}
	delete(s.ids, c.Word)
	return nil
}

func (c deleteWordCmd) NextState(state commands.State) commands.State {
	return state.(modelState).with(c.Word, false)
}

func (c deleteWordCmd) PreCondition(state commands.State) bool {
	return state.(modelState)[c.Word]
}

func (c deleteWordCmd) PostCondition(_ commands.State, result commands.Result) *gopter.PropResult {
	return resultOK(result)
}

func (c deleteWordCmd) String() string { return fmt.Sprintf("DeleteWord(%s)", c.Word) }

type listWordsCmd struct{}

func (listWordsCmd) Run(sut commands.SystemUnderTest) commands.Result {
	text, err := sut.(*vocabSUT).call(handleListWords, "list_words", nil)
	if err != nil {
		return err
	}
	var resp ListWordsResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return err
	}
	return resp
}

func (listWordsCmd) NextState(state commands.State) commands.State { return state }
func (listWordsCmd) PreCondition(commands.State) bool              { return true }

func (listWordsCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	resp, ok := result.(ListWordsResponse)
	if !ok {
		return &gopter.PropResult{Status: gopter.PropError, Error: fmt.Errorf("list_words: %v", result)}
	}
	want := state.(modelState).words()
	got := make([]string, 0, len(resp.Words))
	for _, w := range resp.Words {
		got = append(got, w.Word)
	}
	sort.Strings(got)
	if fmt.Sprint(got) != fmt.Sprint(want) || resp.Stats.TotalWords != len(want) || resp.Stats.DueWords != len(want) {
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (listWordsCmd) String() string { return "ListWords" }

// reviewCmd starts a review and ends it straight away. It must present a
// card exactly when some word exists and leave nothing reviewed.
type reviewCmd struct{}

func (reviewCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*vocabSUT)
	text, err := s.call(handleStartReview, "start_review", nil)
	if err != nil {
		return err
	}
	var started ReviewResponse
	if err := json.Unmarshal([]byte(text), &started); err != nil {
		// Nothing due returns an error body without a status.
		return ReviewResponse{}
	}
	if _, err := s.call(handleEndReview, "end_review", nil); err != nil {
		return err
	}
	return started
}

func (reviewCmd) NextState(state commands.State) commands.State { return state }
func (reviewCmd) PreCondition(commands.State) bool              { return true }

func (reviewCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	started, ok := result.(ReviewResponse)
	if !ok {
		return &gopter.PropResult{Status: gopter.PropError, Error: fmt.Errorf("start_review: %v", result)}
	}
	n := len(state.(modelState))
	if n == 0 {
		if started.Card != nil {
			return &gopter.PropResult{Status: gopter.PropFalse}
		}
		return &gopter.PropResult{Status: gopter.PropTrue}
	}
	if started.Card == nil || started.Status.Remaining != n || started.Status.Reviewed != 0 {
		return &gopter.PropResult{Status: gopter.PropFalse}
	}
	return &gopter.PropResult{Status: gopter.PropTrue}
}

func (reviewCmd) String() string { return "Review" }

func resultOK(result commands.Result) *gopter.PropResult {
	if err, ok := result.(error); ok && err != nil {
		return &gopter.PropResult{Status: gopter.PropError, Error: err}
	}
	return &gopter.PropResult{Status: gopter.PropTrue}
}

// TestCommandSequences verifies the consistency of the tools through random
// command sequences.
func TestCommandSequences(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	vocabulary := []string{"apple", "pear", "run", "walk", "quickly"}

	protoCommands := &commands.ProtoCommands{
		NewSystemUnderTestFunc: func(commands.State) commands.SystemUnderTest {
			f, err := os.CreateTemp(dir, "vocab-*.json")
			if err != nil {
				t.Fatalf("Failed to create data file: %v", err)
			}
			f.Close()
			os.Remove(f.Name())

			fileStorage := storage.NewFileStorage(f.Name())
			if err := fileStorage.Load(); err != nil {
				t.Fatalf("Failed to initialize storage: %v", err)
			}
			svc, err := NewVocabService(fileStorage, cfg, nil)
			if err != nil {
				t.Fatalf("Failed to create service: %v", err)
			}
			return &vocabSUT{ctx: withService(context.Background(), svc), ids: map[string]string{}}
		},
		DestroySystemUnderTestFunc: func(commands.SystemUnderTest) {},
		InitialStateGen:            gen.Const(modelState{}),
		GenCommandFunc: func(state commands.State) gopter.Gen {
			word := gen.IntRange(0, len(vocabulary)-1)
			return gen.OneGenOf(
				word.Map(func(i int) commands.Command { return addWordCmd{Word: vocabulary[i]} }),
				word.Map(func(i int) commands.Command { return deleteWordCmd{Word: vocabulary[i]} }),
				gen.Const(commands.Command(listWordsCmd{})),
				gen.Const(commands.Command(reviewCmd{})),
			)
		},
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.MaxSize = 20

	properties := gopter.NewProperties(parameters)
	properties.Property("command sequences keep the tools consistent", commands.Prop(protoCommands))
	properties.TestingRun(t)
}
