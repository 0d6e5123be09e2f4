package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/multirep-qa/internal/content"
	"github.com/fyerfyer/multirep-qa/internal/docstore"
	"github.com/fyerfyer/multirep-qa/internal/embedding"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
	"github.com/fyerfyer/multirep-qa/internal/vectordb"
)

// recordingSleeper 记录每次等待时长，不真正等待
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

// scriptedIndex 按调用次序返回预设错误的索引，成功时写入真实索引
type scriptedIndex struct {
	*vectordb.Index
	errs  []error
	calls int
}

func (s *scriptedIndex) Add(ctx context.Context, entries []vectordb.Entry) error {
	call := s.calls
	s.calls++
	if call < len(s.errs) && s.errs[call] != nil {
		return s.errs[call]
	}
	return s.Index.Add(ctx, entries)
}

type fixture struct {
	store   *multirep.Store
	index   *scriptedIndex
	content docstore.Store
	sleeper *recordingSleeper
	ing     *Ingestor
}

func newFixture(t *testing.T, errs ...error) *fixture {
	embedder, err := embedding.NewLocalClient(embedding.WithDimensions(32))
	require.NoError(t, err)
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{})
	require.NoError(t, err)
	content, err := docstore.NewMemoryStore(docstore.DefaultConfig())
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	index := &scriptedIndex{Index: vectordb.NewIndex(embedder, repo), errs: errs}
	store := multirep.NewStore(index, content, multirep.WithLogger(logger))
	sleeper := &recordingSleeper{}

	seq := 0
	ing, err := New(store,
		WithSleeper(sleeper),
		WithLogger(logger),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%02d", seq)
		}),
	)
	require.NoError(t, err)

	return &fixture{store: store, index: index, content: content, sleeper: sleeper, ing: ing}
}

func numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i)
	}
	return out
}

// assertBijection 两侧ID集合完全一致
func assertBijection(t *testing.T, f *fixture, want []string) {
	report, err := f.store.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "index and content store diverged: %+v", report)
	assert.Equal(t, len(want), report.IndexCount)

	keys, err := f.content.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func rateLimited() error {
	return embedding.NewEmbeddingError(embedding.ErrCodeRateLimited, "API error (status 429): Too Many Requests")
}

func TestIngestAllBatchesSucceed(t *testing.T) {
	f := newFixture(t)

	report, err := f.ing.Ingest(context.Background(), content.CategoryText, numbered("summary", 7), numbered("original", 7))
	require.NoError(t, err)

	require.Len(t, report.Batches, 3)
	assert.Len(t, report.Batches[0].IDs, 3)
	assert.Len(t, report.Batches[1].IDs, 3)
	assert.Len(t, report.Batches[2].IDs, 1)
	for _, b := range report.Batches {
		assert.Equal(t, BatchSucceeded, b.State)
		assert.Equal(t, 1, b.Attempts)
	}

	// 两次批间等待，最后一批之后不等待
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, f.sleeper.waits)
	assert.Len(t, report.CommittedIDs, 7)
	assert.Empty(t, report.SkippedIDs)
	assertBijection(t, f, report.CommittedIDs)

	value, found, err := f.store.ContentOf(context.Background(), "id-01")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "original 0", value)
}

func TestIngestRecoversAfterRateLimit(t *testing.T) {
	f := newFixture(t, rateLimited(), errors.New("googleapi: Error 429: Resource has been exhausted"))

	report, err := f.ing.Ingest(context.Background(), content.CategoryTable, numbered("s", 3), numbered("c", 3))
	require.NoError(t, err)

	require.Len(t, report.Batches, 1)
	batch := report.Batches[0]
	assert.Equal(t, BatchSucceeded, batch.State)
	assert.Equal(t, 3, batch.Attempts)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, batch.Backoffs)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, f.sleeper.waits)
	assertBijection(t, f, report.CommittedIDs)
	assert.Len(t, report.CommittedIDs, 3)
}

func TestIngestSkipsBatchAfterExhaustingRetries(t *testing.T) {
	// 第一批三次都限流，第二批成功
	f := newFixture(t, rateLimited(), rateLimited(), &models.RateLimitError{Err: errors.New("quota exceeded")})

	report, err := f.ing.Ingest(context.Background(), content.CategoryText, numbered("s", 5), numbered("c", 5))
	require.NoError(t, err)

	require.Len(t, report.Batches, 2)
	assert.Equal(t, BatchSkipped, report.Batches[0].State)
	assert.Equal(t, 3, report.Batches[0].Attempts)
	assert.Contains(t, report.Batches[0].Error, "rate limited")
	assert.Equal(t, BatchSucceeded, report.Batches[1].State)

	assert.Equal(t, []string{"id-01", "id-02", "id-03"}, report.SkippedIDs)
	assert.Equal(t, []string{"id-04", "id-05"}, report.CommittedIDs)
	assert.Equal(t, 1, report.SkippedBatches())

	// 跳过的批次之后没有批间等待，最后一批之后也没有
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, f.sleeper.waits)

	assertBijection(t, f, report.CommittedIDs)
	for _, id := range report.SkippedIDs {
		_, found, _ := f.store.ContentOf(context.Background(), id)
		assert.False(t, found)
	}
}

func TestIngestSkipsNonRateLimitErrorsWithoutRetry(t *testing.T) {
	f := newFixture(t, errors.New("connection reset by peer"))

	report, err := f.ing.Ingest(context.Background(), content.CategoryText, numbered("s", 4), numbered("c", 4))
	require.NoError(t, err)

	assert.Equal(t, BatchSkipped, report.Batches[0].State)
	assert.Equal(t, 1, report.Batches[0].Attempts)
	assert.Contains(t, report.Batches[0].Error, "service error")
	assert.Empty(t, f.sleeper.waits)
	assert.Equal(t, []string{"id-04"}, report.CommittedIDs)
	assertBijection(t, f, report.CommittedIDs)
}

func TestIngestDropsBlankAndUnmatchedSummaries(t *testing.T) {
	f := newFixture(t)

	summaries := []string{"first", "  ", "", "fourth", "fifth", "sixth"}
	originals := []string{"c1", "c2", "c3", "c4", "c5"}
	report, err := f.ing.Ingest(context.Background(), content.CategoryText, summaries, originals)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Received)
	assert.Equal(t, 3, report.Valid)
	assert.Equal(t, 2, report.DroppedBlank)
	assert.Equal(t, 1, report.DroppedUnmatched)
	// 被丢弃的条目不分配ID
	assert.Equal(t, []string{"id-01", "id-02", "id-03"}, report.CommittedIDs)

	for id, want := range map[string]string{"id-01": "c1", "id-02": "c4", "id-03": "c5"} {
		got, found, err := f.store.ContentOf(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, got)
	}
}

func TestIngestNothingValid(t *testing.T) {
	f := newFixture(t)

	report, err := f.ing.Ingest(context.Background(), content.CategoryImage, []string{" ", "\n"}, []string{"a", "b"})
	require.NoError(t, err)

	assert.Zero(t, report.Valid)
	assert.Empty(t, report.Batches)
	assert.NotEmpty(t, report.Validation)
	assert.Zero(t, f.index.calls)
}

func TestIngestStopsOnCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	// 第一次批间等待时取消
	f.ing.sleeper = SleeperFunc(func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	})

	report, err := f.ing.Ingest(ctx, content.CategoryText, numbered("s", 7), numbered("c", 7))
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, report.CommittedIDs, 3)
	assert.Len(t, report.PendingIDs, 4)
	require.Len(t, report.Batches, 3)
	assert.Equal(t, BatchPending, report.Batches[2].State)
	assertBijection(t, f, report.CommittedIDs)
}

func TestIngestPartitionProperty(t *testing.T) {
	tests := []struct {
		n, batch int
		fail     []error
	}{
		{1, 3, nil},
		{3, 3, nil},
		{10, 4, []error{errors.New("boom")}},
		{9, 2, []error{nil, rateLimited(), rateLimited(), rateLimited()}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,b=%d", tt.n, tt.batch), func(t *testing.T) {
			f := newFixture(t, tt.fail...)
			cfg := DefaultConfig()
			cfg.BatchSize = tt.batch
			f.ing.cfg = cfg

			report, err := f.ing.Ingest(context.Background(), content.CategoryText, numbered("s", tt.n), numbered("c", tt.n))
			require.NoError(t, err)

			assert.Len(t, report.Batches, (tt.n+tt.batch-1)/tt.batch)
			assert.Equal(t, report.Valid, len(report.CommittedIDs)+len(report.SkippedIDs))
			for _, b := range report.Batches {
				assert.LessOrEqual(t, b.Attempts, cfg.MaxRetries)
			}
			assertBijection(t, f, report.CommittedIDs)
		})
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	var got []time.Duration
	for attempt := 0; attempt < 6; attempt++ {
		got = append(got, cfg.Backoff(attempt))
	}
	assert.Equal(t, []time.Duration{
		60 * time.Second, 120 * time.Second, 240 * time.Second,
		300 * time.Second, 300 * time.Second, 300 * time.Second,
	}, got)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 0
	_, err := New(nil, WithConfig(cfg))
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxBackoff = time.Second
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("You exceeded your current QUOTA"), true},
		{fmt.Errorf("wrapped: %w", rateLimited()), true},
		{&models.RateLimitError{}, true},
		{embedding.NewEmbeddingError(embedding.ErrCodeServerError, "bad gateway"), false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRateLimit(tt.err), "%v", tt.err)
	}
}

func TestTimerSleeperInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

// capturingCommitter 记录提交的记录
type capturingCommitter struct {
	records []multirep.Record
}

func (c *capturingCommitter) CommitBatch(ctx context.Context, records []multirep.Record) error {
	c.records = append(c.records, records...)
	return nil
}

func TestIngestCarriesCategoryAndOriginals(t *testing.T) {
	committer := &capturingCommitter{}
	logger, _ := test.NewNullLogger()
	ing, err := New(committer, WithLogger(logger), WithSleeper(&recordingSleeper{}))
	require.NoError(t, err)

	_, err = ing.Ingest(context.Background(), content.CategoryTable,
		[]string{"revenue by region", "", "headcount by team"},
		[]string{"Region | Q1", "dropped", "Team | Count"})
	require.NoError(t, err)

	require.Len(t, committer.records, 2)
	for _, r := range committer.records {
		assert.Equal(t, "table", r.Category)
		assert.NotEmpty(t, r.ID)
	}
	assert.Equal(t, "revenue by region", committer.records[0].Summary)
	assert.Equal(t, "Region | Q1", committer.records[0].Content)
	assert.Equal(t, "Team | Count", committer.records[1].Content)
}
