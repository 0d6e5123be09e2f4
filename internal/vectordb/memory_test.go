package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 3, DistanceType: Cosine})
	require.NoError(t, err)
	return repo
}

func TestMemoryRepositoryCRUD(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.AddBatch([]Document{
		{ID: "a", Category: "text", Text: "alpha", Vector: []float32{1, 0, 0}},
		{ID: "b", Category: "table", Text: "beta", Vector: []float32{0, 1, 0}},
	}))

	doc, err := repo.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", doc.Text)
	assert.False(t, doc.CreatedAt.IsZero())

	count, _ := repo.Count()
	assert.Equal(t, 2, count)

	require.NoError(t, repo.Delete("a"))
	_, err = repo.Get("a")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, repo.Delete("a"), ErrDocumentNotFound)

	ids, _ := repo.IDs()
	assert.Equal(t, []string{"b"}, ids)
}

func TestMemoryRepositoryBatchIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Add(Document{ID: "a", Vector: []float32{1, 0, 0}}))

	tests := []struct {
		name string
		docs []Document
		want error
	}{
		{"duplicate existing", []Document{{ID: "c", Vector: []float32{1, 1, 0}}, {ID: "a", Vector: []float32{0, 0, 1}}}, ErrDuplicateID},
		{"duplicate in batch", []Document{{ID: "c", Vector: []float32{1, 1, 0}}, {ID: "c", Vector: []float32{0, 0, 1}}}, ErrDuplicateID},
		{"wrong dimension", []Document{{ID: "c", Vector: []float32{1, 1, 0}}, {ID: "d", Vector: []float32{1}}}, ErrInvalidDimension},
		{"empty id", []Document{{ID: "", Vector: []float32{1, 1, 0}}}, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.AddBatch(tt.docs)
			assert.ErrorIs(t, err, tt.want)

			count, _ := repo.Count()
			assert.Equal(t, 1, count)
		})
	}
}

func TestMemoryRepositorySearch(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.AddBatch([]Document{
		{ID: "x", Category: "text", Vector: []float32{1, 0, 0}},
		{ID: "xy", Category: "table", Vector: []float32{1, 1, 0}},
		{ID: "z", Category: "text", Vector: []float32{0, 0, 1}},
	}))

	results, err := repo.Search([]float32{1, 0.1, 0}, SearchFilter{MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].Document.ID)
	assert.Equal(t, "xy", results[1].Document.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	results, err = repo.Search([]float32{1, 0.1, 0}, SearchFilter{Categories: []string{"text"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "z", results[1].Document.ID)

	_, err = repo.Search([]float32{1, 0}, DefaultSearchFilter())
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestMemoryRepositoryParallelSearchMatchesSerial(t *testing.T) {
	repo, err := NewMemoryRepository(Config{Dimension: 2})
	require.NoError(t, err)

	docs := make([]Document, 600)
	for i := range docs {
		docs[i] = Document{ID: string(rune('a'+i%26)) + string(rune('A'+i/26)), Vector: []float32{float32(i), float32(600 - i)}}
	}
	require.NoError(t, repo.AddBatch(docs))

	results, err := repo.Search([]float32{599, 1}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docs[599].ID, results[0].Document.ID)
}

func TestMemoryRepositoryInfersDimension(t *testing.T) {
	repo, err := NewMemoryRepository(Config{})
	require.NoError(t, err)
	require.NoError(t, repo.Add(Document{ID: "a", Vector: []float32{1, 2, 3, 4}}))
	assert.Equal(t, 4, repo.GetDimension())
}

func TestEmptyRepositorySearch(t *testing.T) {
	repo := newTestRepo(t)
	results, err := repo.Search([]float32{1, 0, 0}, DefaultSearchFilter())
	require.NoError(t, err)
	assert.Empty(t, results)
}
