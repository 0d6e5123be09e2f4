package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoBatches(t *testing.T) {
	batches := splitIntoBatches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)
}

func TestBatchProcessorKeepsOrder(t *testing.T) {
	client := new(MockClient)
	client.On("EmbedBatch", mock.Anything, []string{"a", "b"}).Return([][]float32{{1}, {2}}, nil)
	client.On("EmbedBatch", mock.Anything, []string{"c"}).Return([][]float32{{3}}, nil)

	p := NewBatchProcessor(client, 2, 2)
	vectors, err := p.Process(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vectors)
	client.AssertNumberOfCalls(t, "EmbedBatch", 2)
}

func TestBatchProcessorPropagatesRateLimit(t *testing.T) {
	client := new(MockClient)
	client.On("EmbedBatch", mock.Anything, []string{"a"}).Return([][]float32{{1}}, nil)
	client.On("EmbedBatch", mock.Anything, []string{"b"}).
		Return(nil, NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited))

	p := NewBatchProcessor(client, 1, 1)
	_, err := p.Process(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestBatchProcessorRejectsEmptyText(t *testing.T) {
	client := new(MockClient)
	p := NewBatchProcessor(client, 2, 1)

	_, err := p.Process(context.Background(), []string{"a", ""})
	require.Error(t, err)
	client.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}
