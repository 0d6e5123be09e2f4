package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSynthesizerAnswer(t *testing.T) {
	client := new(MockClient)
	question := "What was revenue in Q2?"
	contexts := []string{"Revenue in Q2 was 12M.", "Region | Q1 | Q2\nNorth | 10 | 12"}

	client.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.HasPrefix(prompt, "Answer the question based only on the following context") &&
			strings.Contains(prompt, "Revenue in Q2 was 12M.\n\nRegion | Q1 | Q2") &&
			strings.HasSuffix(prompt, "Question: "+question+"\n")
	})).Return(&Response{Text: "  Revenue in Q2 was 12M.\n"}, nil).Once()

	s := NewSynthesizer(client)
	answer, err := s.Answer(context.Background(), question, contexts)

	require.NoError(t, err)
	assert.Equal(t, "Revenue in Q2 was 12M.", answer)
	client.AssertExpectations(t)
}

func TestSynthesizerPropagatesErrors(t *testing.T) {
	client := new(MockClient)
	rateErr := NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
	client.On("Generate", mock.Anything, mock.Anything).Return(nil, rateErr).Once()

	s := NewSynthesizer(client)
	_, err := s.Answer(context.Background(), "question?", []string{"ctx"})

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	// 不重试
	client.AssertNumberOfCalls(t, "Generate", 1)
}

func TestSynthesizerEmptyQuestion(t *testing.T) {
	client := new(MockClient)
	s := NewSynthesizer(client)

	_, err := s.Answer(context.Background(), "   ", nil)

	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSynthesizerCustomTemplate(t *testing.T) {
	s := NewSynthesizer(new(MockClient), WithTemplate("Q={{.Question}} C={{.Context}}"))
	assert.Equal(t, "Q=why C=a\n\nb", s.BuildPrompt("why", []string{"a", "b"}))
}

func TestSynthesizerKeepsContextVerbatim(t *testing.T) {
	s := NewSynthesizer(new(MockClient))
	block := "Use {{.Question}} and {{.Context}} in a Go template."

	prompt := s.BuildPrompt("what is x?", []string{block})

	assert.Contains(t, prompt, "\n\n"+block+"\n\n")
	assert.True(t, strings.HasSuffix(prompt, "Question: what is x?\n"))
	assert.Equal(t, 1, strings.Count(prompt, "what is x?"))
}
