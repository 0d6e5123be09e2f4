//go:build faiss

package vectordb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaissRepositorySearchAndDelete(t *testing.T) {
	repo, err := NewRepository(Config{Type: "faiss", Dimension: 3, DistanceType: Cosine, InMemory: true})
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.AddBatch([]Document{
		{ID: "x", Category: "text", Vector: []float32{1, 0, 0}},
		{ID: "y", Category: "table", Vector: []float32{0, 1, 0}},
		{ID: "xy", Category: "text", Vector: []float32{1, 1, 0}},
	}))

	results, err := repo.Search([]float32{1, 0.1, 0}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].Document.ID)

	require.NoError(t, repo.Delete("x"))
	results, err = repo.Search([]float32{1, 0.1, 0}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "xy", results[0].Document.ID)

	assert.ErrorIs(t, repo.Add(Document{ID: "y", Vector: []float32{0, 0, 1}}), ErrDuplicateID)
}

func TestFaissRepositoryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	cfg := Config{Type: "faiss", Path: path, Dimension: 2, DistanceType: Cosine, CreateIfNotExists: true}

	repo, err := NewRepository(cfg)
	require.NoError(t, err)
	require.NoError(t, repo.AddBatch([]Document{
		{ID: "a", Text: "first", Vector: []float32{1, 0}},
		{ID: "b", Text: "second", Vector: []float32{0, 1}},
	}))
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	doc, err := reopened.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Text)
}
