package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/multirep-qa/internal/content"
	"github.com/fyerfyer/multirep-qa/internal/docstore"
	"github.com/fyerfyer/multirep-qa/internal/embedding"
	"github.com/fyerfyer/multirep-qa/internal/ingest"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
	"github.com/fyerfyer/multirep-qa/internal/vectordb"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// fixture 基于内存实现的完整存储
type fixture struct {
	store   *multirep.Store
	content docstore.Store
}

func newFixture(t *testing.T) *fixture {
	embedder, err := embedding.NewLocalClient()
	require.NoError(t, err)
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{})
	require.NoError(t, err)
	content, err := docstore.NewMemoryStore(docstore.DefaultConfig())
	require.NoError(t, err)

	return &fixture{
		store:   multirep.NewStore(vectordb.NewIndex(embedder, repo), content, multirep.WithLogger(quietLogger())),
		content: content,
	}
}

func (f *fixture) ingestor(t *testing.T) *ingest.Ingestor {
	cfg := ingest.DefaultConfig()
	cfg.BatchSize = 2
	i, err := ingest.New(f.store,
		ingest.WithConfig(cfg),
		ingest.WithSleeper(ingest.SleeperFunc(func(ctx context.Context, d time.Duration) error { return ctx.Err() })),
		ingest.WithLogger(quietLogger()))
	require.NoError(t, err)
	return i
}

// fakeSummarizer 回显输入作为摘要，可按类别注入失败
type fakeSummarizer struct {
	fail  map[content.Category]error
	calls map[content.Category]int
}

func newFakeSummarizer() *fakeSummarizer {
	return &fakeSummarizer{
		fail:  map[content.Category]error{},
		calls: map[content.Category]int{},
	}
}

func (f *fakeSummarizer) Summarize(ctx context.Context, category content.Category, inputs []string) ([]string, error) {
	f.calls[category]++
	if err := f.fail[category]; err != nil {
		return nil, err
	}
	out := make([]string, len(inputs))
	for i, in := range inputs {
		if strings.Contains(in, "EMPTY") {
			continue
		}
		out[i] = "summary: " + in
	}
	return out, nil
}

// MockAnswerer 测试用答案生成器
type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	args := m.Called(ctx, question, contexts)
	return args.String(0), args.Error(1)
}

// stubCaptioner 固定返回描述
type stubCaptioner struct{}

func (stubCaptioner) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	return "A bar plot comparing revenue of North and South regions.", nil
}

func (stubCaptioner) Name() string { return "stub-vision" }
