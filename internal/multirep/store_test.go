package multirep

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fyerfyer/multirep-qa/internal/database"
	"github.com/fyerfyer/multirep-qa/internal/docstore"
	"github.com/fyerfyer/multirep-qa/internal/embedding"
	"github.com/fyerfyer/multirep-qa/internal/vectordb"
)

// brokenContent BulkSet 总是失败的内容存储
type brokenContent struct {
	docstore.Store
}

func (b brokenContent) BulkSet(ctx context.Context, items []docstore.Item) error {
	return errors.New("disk full")
}

// halfWrittenIndex 写入条目后仍返回错误的索引，例如持久化失败
type halfWrittenIndex struct {
	*vectordb.Index
}

func (h halfWrittenIndex) Add(ctx context.Context, entries []vectordb.Entry) error {
	if err := h.Index.Add(ctx, entries); err != nil {
		return err
	}
	return errors.New("auto-save failed: read-only file system")
}

func newIndex(t *testing.T) *vectordb.Index {
	embedder, err := embedding.NewLocalClient()
	require.NoError(t, err)
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{})
	require.NoError(t, err)
	return vectordb.NewIndex(embedder, repo)
}

func newContent(t *testing.T) docstore.Store {
	content, err := docstore.NewMemoryStore(docstore.DefaultConfig())
	require.NoError(t, err)
	return content
}

func TestCommitBatchAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newIndex(t), newContent(t))

	ready, err := store.Ready(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, store.CommitBatch(ctx, []Record{
		{ID: "t1", Category: "table", Summary: "revenue per region for two quarters", Content: "Region | Q1 | Q2\nNorth | 10 | 12"},
		{ID: "x1", Category: "text", Summary: "the company hired engineers", Content: "In 2023 the company hired forty engineers."},
	}))

	ready, _ = store.Ready(ctx)
	assert.True(t, ready)

	ids, err := store.Nearest(ctx, "regional revenue", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, ids)

	content, found, err := store.ContentOf(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Region | Q1 | Q2\nNorth | 10 | 12", content)

	report, err := store.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.IndexCount)
}

func TestCommitBatchRollsBackIndexOnContentFailure(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)
	content := newContent(t)
	store := NewStore(index, brokenContent{content})

	err := store.CommitBatch(ctx, []Record{{ID: "a", Summary: "s", Content: "c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	n, _ := index.Count()
	assert.Zero(t, n)
	assert.Zero(t, store.Generation())
}

func TestCommitBatchIndexFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 4})
	require.NoError(t, err)
	embedder, _ := embedding.NewLocalClient(embedding.WithDimensions(8))
	content := newContent(t)
	store := NewStore(vectordb.NewIndex(embedder, repo), content)

	// 维度不匹配导致索引写入失败
	err = store.CommitBatch(ctx, []Record{{ID: "a", Summary: "s", Content: "c"}})
	require.Error(t, err)

	n, _ := content.Count(ctx)
	assert.Zero(t, n)
}

func TestCommitRejectsEmptyID(t *testing.T) {
	store := NewStore(newIndex(t), newContent(t))
	assert.ErrorIs(t, store.Commit(context.Background(), " ", "s", "c"), ErrEmptyID)
}

func TestVerifyDetectsDrift(t *testing.T) {
	ctx := context.Background()
	content := newContent(t)
	store := NewStore(newIndex(t), content)
	require.NoError(t, store.Commit(ctx, "a", "alpha summary", "alpha"))
	require.NoError(t, store.Commit(ctx, "b", "beta summary", "beta"))

	// 绕过存储直接修改内容侧
	require.NoError(t, content.Delete(ctx, "a"))
	require.NoError(t, content.Set(ctx, "stray", "orphan"))

	report, err := store.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, []string{"a"}, report.MissingContent)
	assert.Equal(t, []string{"stray"}, report.OrphanedContent)
}

func TestResetClearsBothSides(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newIndex(t), newContent(t))
	require.NoError(t, store.Commit(ctx, "a", "alpha", "alpha"))
	gen := store.Generation()

	require.NoError(t, store.Reset(ctx))

	size, _ := store.Size(ctx)
	assert.Zero(t, size)
	report, _ := store.Verify(ctx)
	assert.Zero(t, report.ContentCount)
	assert.Greater(t, store.Generation(), gen)
}

func TestCommitBatchRollsBackPartialIndexWrite(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)
	content := newContent(t)
	store := NewStore(halfWrittenIndex{index}, content)

	err := store.CommitBatch(ctx, []Record{
		{ID: "a", Summary: "alpha", Content: "alpha"},
		{ID: "b", Summary: "beta", Content: "beta"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto-save failed")

	n, _ := index.Count()
	assert.Zero(t, n)
	report, err := store.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Zero(t, report.ContentCount)
}

func openSQLite(t *testing.T, path string) *gorm.DB {
	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := database.Open(&database.Config{Type: "sqlite", DSN: path}, log)
	require.NoError(t, err)
	return db
}

func closeSQLite(t *testing.T, db *gorm.DB) {
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestReconcileAfterRestartWithVolatileIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "content.db")

	db := openSQLite(t, path)
	first := NewStore(newIndex(t), docstore.NewGormStoreWithDB(db))
	require.NoError(t, first.Commit(ctx, "a", "alpha summary", "alpha"))
	closeSQLite(t, db)

	// 内容存储持久化，索引在重启后为空
	db = openSQLite(t, path)
	defer closeSQLite(t, db)
	content := docstore.NewGormStoreWithDB(db)
	store := NewStore(newIndex(t), content)

	before, err := store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, before.OrphanedContent)

	after, err := store.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
	assert.Zero(t, after.ContentCount)
	ready, _ := store.Ready(ctx)
	assert.False(t, ready)
}

func TestReconcilePrunesIndexWithoutContent(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)
	require.NoError(t, index.Add(ctx, []vectordb.Entry{{ID: "ghost", Text: "left over from a persisted index"}}))

	store := NewStore(index, newContent(t))
	require.NoError(t, store.Commit(ctx, "kept", "kept summary", "kept"))
	gen := store.Generation()

	before, err := store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, before.MissingContent)
	assert.Greater(t, store.Generation(), gen)

	ids, err := index.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids)

	// 已一致时不做修改
	gen = store.Generation()
	report, err := store.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, gen, store.Generation())
}
