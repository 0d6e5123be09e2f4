package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkByTitleCombinesSmallSections(t *testing.T) {
	chunker := NewTitleChunker(DefaultChunkConfig())

	elements := []Element{
		{Kind: KindTitle, Text: "Introduction"},
		{Kind: KindNarrativeText, Text: "Short intro."},
		{Kind: KindTitle, Text: "Method"},
		{Kind: KindNarrativeText, Text: "Short method."},
	}

	chunks := chunker.Chunk(elements)
	require.Len(t, chunks, 1)
	assert.Equal(t, KindCompositeElement, chunks[0].Kind)
	assert.Equal(t, "Introduction\n\nShort intro.\n\nMethod\n\nShort method.", chunks[0].Text)
}

func TestChunkByTitleRespectsSoftLimit(t *testing.T) {
	chunker := NewTitleChunker(ChunkConfig{
		CombineUnderChars: 0,
		MaxCharacters:     100,
		NewAfterChars:     50,
	})

	para := strings.Repeat("a", 40)
	elements := []Element{
		{Kind: KindTitle, Text: "Title"},
		{Kind: KindNarrativeText, Text: para},
		{Kind: KindNarrativeText, Text: para},
		{Kind: KindNarrativeText, Text: para},
	}

	chunks := chunker.Chunk(elements)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Title\n\n"+para+"\n\n"+para, chunks[0].Text)
	assert.Equal(t, para, chunks[1].Text)
}

func TestChunkByTitleSplitsOversizedElements(t *testing.T) {
	chunker := NewTitleChunker(ChunkConfig{MaxCharacters: 20, NewAfterChars: 20})

	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks := chunker.Chunk([]Element{{Kind: KindNarrativeText, Text: text}})

	require.NotEmpty(t, chunks)
	var rebuilt []string
	for _, c := range chunks {
		assert.LessOrEqual(t, runeLen(c.Text), 20)
		rebuilt = append(rebuilt, c.Text)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(rebuilt, " ")))
}

func TestChunkByTitleEmptyInput(t *testing.T) {
	chunker := NewTitleChunker(DefaultChunkConfig())
	assert.Empty(t, chunker.Chunk(nil))
}

func TestLoad(t *testing.T) {
	content := "Overview\n\nThe system stores summaries.\n\n" +
		"Name  Size  Kind\nA  1  text\nB  2  table\n\n" +
		"Figure 1: architecture"
	file := createTempFile(t, content, ".txt")

	loaded, err := Load(file, "", DefaultChunkConfig())
	require.NoError(t, err)

	assert.Len(t, loaded.Elements, 4)
	require.Len(t, loaded.Tables, 1)
	require.Len(t, loaded.Chunks, 1)
	assert.Equal(t, "Overview\n\nThe system stores summaries.", loaded.Chunks[0].Text)
}
