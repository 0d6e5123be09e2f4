package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/multirep-qa/internal/cache"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
	"github.com/fyerfyer/multirep-qa/internal/retriever"
)

func seed(t *testing.T, f *fixture) {
	err := f.store.CommitBatch(context.Background(), []multirep.Record{
		{ID: "a", Category: "text", Summary: "revenue grew in the north region", Content: "North revenue grew 20%."},
		{ID: "b", Category: "text", Summary: "hiring slowed across teams", Content: "Hiring slowed in Q2."},
		{ID: "c", Category: "table", Summary: "table of revenue per region", Content: "Region | Q2\nNorth | 12"},
		{ID: "d", Category: "image", Summary: "bar plot of revenue", Content: "bar plot of revenue"},
	})
	require.NoError(t, err)
}

func newQA(f *fixture, answerer Answerer, opts ...QAOption) *QAService {
	r := retriever.New(f.store, retriever.WithLogger(quietLogger()))
	return NewQAService(r, answerer, append(opts, WithQALogger(quietLogger()))...)
}

func TestAskBeforeIngestion(t *testing.T) {
	f := newFixture(t)
	answerer := new(MockAnswerer)
	svc := newQA(f, answerer)

	_, err := svc.Ask(context.Background(), "What was revenue?", 4)

	require.Error(t, err)
	assert.True(t, models.IsNotReady(err))
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	svc := newQA(f, new(MockAnswerer))

	_, err := svc.Ask(context.Background(), "  ", 4)
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestAskSkipsMissingContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)
	require.NoError(t, f.content.Delete(ctx, "b"))

	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, "What was revenue?", mock.MatchedBy(func(contexts []string) bool {
		return len(contexts) == 3
	})).Return("Revenue grew.", nil).Once()

	svc := newQA(f, answerer)
	result, err := svc.Ask(ctx, "What was revenue?", 4)
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew.", result.Answer)
	assert.Len(t, result.Sources, 3)
	assert.Equal(t, []string{"b"}, result.Inconsistencies)
	for _, src := range result.Sources {
		assert.NotEqual(t, "b", src.ID)
	}
	answerer.AssertExpectations(t)
}

func TestAskPropagatesAnswerError(t *testing.T) {
	f := newFixture(t)
	seed(t, f)

	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("llm error (code=1004): too many requests")).Once()

	_, err := newQA(f, answerer).Ask(context.Background(), "What was revenue?", 2)
	assert.ErrorContains(t, err, "failed to generate answer")
}

func TestAskUsesCacheUntilStoreChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)

	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return("Revenue grew.", nil)

	svc := newQA(f, answerer, WithCache(c, f.store, time.Minute))

	first, err := svc.Ask(ctx, "What was revenue?", 2)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Ask(ctx, "  what was REVENUE? ", 2)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
	answerer.AssertNumberOfCalls(t, "Answer", 1)

	// 新内容入库后版本号变化，缓存失效
	require.NoError(t, f.store.Commit(ctx, "e", "new revenue figures", "Revenue in Q3 was 15M."))
	third, err := svc.Ask(ctx, "What was revenue?", 2)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	answerer.AssertNumberOfCalls(t, "Answer", 2)
}

// countingCache 记录读取次数的缓存
type countingCache struct {
	cache.Cache
	gets int
}

func (c *countingCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	return c.Cache.Get(ctx, key)
}

func TestAskBeforeIngestionSkipsCache(t *testing.T) {
	f := newFixture(t)
	mem, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	c := &countingCache{Cache: mem}

	svc := newQA(f, new(MockAnswerer), WithCache(c, f.store, time.Minute))
	_, err = svc.Ask(context.Background(), "What was revenue?", 4)

	assert.True(t, models.IsNotReady(err))
	assert.Zero(t, c.gets)
}

func TestRetrieveWithoutAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f)
	require.NoError(t, f.content.Delete(ctx, "b"))

	answerer := new(MockAnswerer)
	svc := newQA(f, answerer)

	result, err := svc.Retrieve(ctx, "What was revenue?", 4)
	require.NoError(t, err)
	assert.Len(t, result.Sources, 3)
	assert.Equal(t, []string{"b"}, result.Inconsistencies)
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)

	_, err = svc.Retrieve(ctx, " ", 4)
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRetrieveBeforeIngestion(t *testing.T) {
	_, err := newQA(newFixture(t), new(MockAnswerer)).Retrieve(context.Background(), "What was revenue?", 4)
	assert.True(t, models.IsNotReady(err))
}
