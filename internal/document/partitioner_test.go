package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	path := filepath.Join(t.TempDir(), "doc"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTempPDF(t *testing.T, pages ...string) string {
	path := filepath.Join(t.TempDir(), "doc.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func kindsOf(elements []Element) []ElementKind {
	kinds := make([]ElementKind, len(elements))
	for i, el := range elements {
		kinds[i] = el.Kind
	}
	return kinds
}

func TestPlainTextPartitioner(t *testing.T) {
	content := "Quarterly Report\n\n" +
		"Revenue grew steadily this quarter.\nMargins held.\n\n" +
		"Region  Q1  Q2\nNorth  10  12\nSouth  8  9\n\n" +
		"Figure 2: revenue by region\n\n" +
		"x = a + b"
	file := createTempFile(t, content, ".txt")

	elements, err := NewPlainTextPartitioner().Partition(file)
	require.NoError(t, err)

	assert.Equal(t, []ElementKind{
		KindTitle,
		KindNarrativeText,
		KindTable,
		KindFigureCaption,
		KindFormula,
	}, kindsOf(elements))
	assert.Equal(t, "Revenue grew steadily this quarter. Margins held.", elements[1].Text)
	assert.Contains(t, elements[2].Text, "North  10  12")
}

func TestMarkdownPartitioner(t *testing.T) {
	content := "# Intro\n\n" +
		"This is a **markdown** file.\n\n" +
		"| a | b | c |\n|---|---|---|\n| 1 | 2 | 3 |\n\n" +
		"![chart](chart.png)\n\n" +
		"Figure 1: sales by year\n\n" +
		"- Item 1\n- Item 2\n"
	file := createTempFile(t, content, ".md")

	elements, err := NewMarkdownPartitioner().Partition(file)
	require.NoError(t, err)

	kinds := kindsOf(elements)
	assert.Equal(t, KindTitle, kinds[0])
	assert.Equal(t, "Intro", elements[0].Text)
	assert.Contains(t, kinds, KindTable)
	assert.Contains(t, kinds, KindImage)
	assert.Contains(t, kinds, KindFigureCaption)
	assert.Contains(t, kinds, KindListItem)

	for _, el := range elements {
		switch el.Kind {
		case KindTable:
			assert.Equal(t, "a | b | c\n1 | 2 | 3", el.Text)
		case KindNarrativeText:
			assert.Equal(t, "This is a markdown file.", el.Text)
		}
	}
}

func TestMarkdownPartitionerReader(t *testing.T) {
	elements, err := NewMarkdownPartitioner().PartitionReader(strings.NewReader("Just text."), "inline.md")
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, KindNarrativeText, elements[0].Kind)
}

func TestPDFPartitioner(t *testing.T) {
	file := createTempPDF(t, "This is a PDF test.\nSecond line.")

	elements, err := NewPDFPartitioner().Partition(file)
	require.NoError(t, err)

	var all []string
	for _, el := range elements {
		all = append(all, el.Text)
		assert.Equal(t, 1, el.Page)
	}
	assert.Contains(t, strings.Join(all, " "), "PDF test")
}

func TestPDFPartitionerHeaders(t *testing.T) {
	file := createTempPDF(t,
		"ACME Annual Report\nFirst page body text goes here.\n1",
		"ACME Annual Report\nSecond page body text goes here.\n2",
	)

	elements, err := NewPDFPartitioner().Partition(file)
	require.NoError(t, err)

	counts := CountByKind(elements)
	assert.Equal(t, 2, counts[KindHeader])
	assert.Equal(t, 2, counts[KindFooter])

	narrative, tables := Filter(elements)
	assert.Empty(t, tables)
	for _, el := range narrative {
		assert.NotEqual(t, "ACME Annual Report", el.Text)
	}
}

func TestPartitionerFactory(t *testing.T) {
	txtFile := createTempFile(t, "plain text.", ".txt")
	mdFile := createTempFile(t, "# Markdown", ".md")
	pdfFile := createTempPDF(t, "PDF content here.")

	tests := []struct {
		file     string
		expected string
	}{
		{txtFile, "plain text"},
		{mdFile, "Markdown"},
		{pdfFile, "PDF content"},
	}

	for _, tt := range tests {
		partitioner, err := PartitionerFactory(tt.file, "")
		require.NoError(t, err, tt.file)

		elements, err := partitioner.Partition(tt.file)
		require.NoError(t, err, tt.file)
		require.NotEmpty(t, elements)
		assert.Contains(t, elements[0].Text, tt.expected)
	}

	_, err := PartitionerFactory("slides.pptx", "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeContentStream(t *testing.T) {
	stream := []byte("BT /F1 12 Tf 72 712 Td (Hello \\(world\\)) Tj ET\n" +
		"BT 72 700 Td [(Sp) 20 (lit) -300 (words)] TJ ET\n" +
		"BT 72 690 Td (\\101\\102C) Tj ET")

	lines := decodeContentStream(stream)
	assert.Equal(t, []string{"Hello (world)", "Split words", "ABC"}, lines)
}

func TestFilter(t *testing.T) {
	elements := []Element{
		{Kind: KindHeader, Text: "header"},
		{Kind: KindTitle, Text: "Title"},
		{Kind: KindNarrativeText, Text: "body"},
		{Kind: KindTable, Text: "a | b | c"},
		{Kind: KindImage, Text: "img.png"},
		{Kind: KindFigureCaption, Text: "Figure 1"},
		{Kind: KindFormula, Text: "x = 1"},
		{Kind: KindFooter, Text: "1"},
	}

	narrative, tables := Filter(elements)
	assert.Equal(t, []ElementKind{KindTitle, KindNarrativeText}, kindsOf(narrative))
	assert.Equal(t, []ElementKind{KindTable}, kindsOf(tables))
}
