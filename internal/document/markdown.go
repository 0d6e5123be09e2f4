package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownPartitioner Markdown文档分区器
// 基于语法树识别标题、段落、列表、表格、图片和公式
type MarkdownPartitioner struct{}

// NewMarkdownPartitioner 创建新的Markdown分区器
func NewMarkdownPartitioner() Partitioner {
	return &MarkdownPartitioner{}
}

// Partition 解析Markdown文件
func (p *MarkdownPartitioner) Partition(filePath string) ([]Element, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open markdown file: %w", err)
	}
	defer file.Close()

	return p.PartitionReader(file, filePath)
}

// PartitionReader 从Reader解析Markdown内容
func (p *MarkdownPartitioner) PartitionReader(r io.Reader, filename string) ([]Element, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.MathJax
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	var elements []Element
	for _, node := range doc.GetChildren() {
		elements = append(elements, blockElements(node)...)
	}
	return elements, nil
}

// blockElements 将顶层块节点转换为元素
func blockElements(node ast.Node) []Element {
	switch n := node.(type) {
	case *ast.Heading:
		return single(KindTitle, textOf(n))
	case *ast.Table:
		return single(KindTable, tableText(n))
	case *ast.MathBlock:
		return single(KindFormula, string(n.Literal))
	case *ast.CodeBlock:
		return single(KindNarrativeText, string(n.Literal))
	case *ast.List:
		var items []Element
		for _, child := range n.GetChildren() {
			items = append(items, single(KindListItem, textOf(child))...)
		}
		return items
	case *ast.BlockQuote:
		var quoted []Element
		for _, child := range n.GetChildren() {
			quoted = append(quoted, blockElements(child)...)
		}
		return quoted
	case *ast.Paragraph:
		if onlyImages(n) {
			return single(KindImage, textOf(n))
		}
		text := textOf(n)
		if captionPattern.MatchString(strings.TrimSpace(text)) {
			return single(KindFigureCaption, text)
		}
		return single(KindNarrativeText, text)
	case *ast.HorizontalRule, *ast.HTMLBlock:
		return nil
	default:
		return single(KindNarrativeText, textOf(n))
	}
}

func single(kind ElementKind, text string) []Element {
	text = strings.TrimSpace(text)
	if text == "" && kind != KindImage {
		return nil
	}
	return []Element{{Kind: kind, Text: text}}
}

// textOf 拼接节点下所有叶子节点的文本
func textOf(node ast.Node) string {
	var sb strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n.(type) {
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteString(" ")
			return ast.GoToNext
		}
		if leaf := n.AsLeaf(); leaf != nil {
			sb.Write(leaf.Literal)
		}
		return ast.GoToNext
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

// tableText 将表格渲染为以 | 分隔的多行文本
func tableText(table *ast.Table) string {
	var rows []string
	ast.WalkFunc(table, func(n ast.Node, entering bool) ast.WalkStatus {
		row, ok := n.(*ast.TableRow)
		if !ok || !entering {
			return ast.GoToNext
		}
		var cells []string
		for _, cell := range row.GetChildren() {
			cells = append(cells, textOf(cell))
		}
		rows = append(rows, strings.Join(cells, " | "))
		return ast.SkipChildren
	})
	return strings.Join(rows, "\n")
}

// onlyImages 段落是否只包含图片
func onlyImages(p *ast.Paragraph) bool {
	found := false
	for _, child := range p.GetChildren() {
		switch c := child.(type) {
		case *ast.Image:
			found = true
		case *ast.Text:
			if strings.TrimSpace(string(c.Literal)) != "" {
				return false
			}
		default:
			return false
		}
	}
	return found
}
