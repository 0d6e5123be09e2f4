package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalClientDeterministic(t *testing.T) {
	client, err := NewClient("local", WithDimensions(64))
	require.NoError(t, err)

	a, err := client.Embed(context.Background(), "Quarterly revenue grew")
	require.NoError(t, err)
	b, err := client.Embed(context.Background(), "quarterly REVENUE grew!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func TestLocalClientSimilarity(t *testing.T) {
	client, err := NewLocalClient()
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{
		"revenue by region table",
		"regional revenue table for the year",
		"photosynthesis in green plants",
	})
	require.NoError(t, err)

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestLocalClientEmptyInput(t *testing.T) {
	client, err := NewLocalClient()
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "  ")
	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeEmptyInput, embErr.Code)
}
