package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/services"
)

type stubAsker struct {
	questions []string
	err       error
}

func (s *stubAsker) Ask(ctx context.Context, question string, k int) (*services.AnswerResult, error) {
	s.questions = append(s.questions, question)
	if s.err != nil {
		return nil, s.err
	}
	return &services.AnswerResult{Answer: "answer to " + question}, nil
}

func TestChatLoopExitWords(t *testing.T) {
	for _, word := range []string{"quit", "exit", "q", "stop", "QUIT", "  Stop  "} {
		asker := &stubAsker{}
		var out bytes.Buffer

		err := chatLoop(context.Background(), strings.NewReader(word+"\nnever asked\n"), &out, asker, 4)

		require.NoError(t, err, word)
		assert.Empty(t, asker.questions, word)
		assert.Contains(t, out.String(), "Goodbye!")
	}
}

func TestChatLoopEmptyInput(t *testing.T) {
	asker := &stubAsker{}
	var out bytes.Buffer

	err := chatLoop(context.Background(), strings.NewReader("\n   \nWhat was revenue?\nq\n"), &out, asker, 4)

	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Please enter a valid question."))
	assert.Equal(t, []string{"What was revenue?"}, asker.questions)
	assert.Contains(t, out.String(), "Answer: answer to What was revenue?")
}

func TestChatLoopKeepsGoingAfterErrors(t *testing.T) {
	asker := &stubAsker{err: &models.NotReadyError{}}
	var out bytes.Buffer

	err := chatLoop(context.Background(), strings.NewReader("first\nsecond\n"), &out, asker, 4)

	// 输入结束时正常返回
	require.NoError(t, err)
	assert.Len(t, asker.questions, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "Error processing question"))
}

func TestChatLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asker := &stubAsker{err: context.Canceled}

	err := chatLoop(ctx, strings.NewReader("first\nsecond\n"), &bytes.Buffer{}, asker, 4)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, asker.questions, 1)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["ingest"])
	assert.True(t, names["chat"])

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.yaml", flag.DefValue)

	flag = chatCmd.Flags().Lookup("images")
	require.NotNil(t, flag)
	assert.Equal(t, "i", flag.Shorthand)
}

func TestIngestRequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}
