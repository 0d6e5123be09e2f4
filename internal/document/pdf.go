package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFPartitioner PDF文档分区器
type PDFPartitioner struct {
	imageDir string // 图片导出目录，为空则不导出
}

// PDFOption PDF分区器选项
type PDFOption func(*PDFPartitioner)

// WithImageOutput 设置图片导出目录
func WithImageOutput(dir string) PDFOption {
	return func(p *PDFPartitioner) {
		p.imageDir = dir
	}
}

// NewPDFPartitioner 创建一个新的PDF分区器
func NewPDFPartitioner(opts ...PDFOption) Partitioner {
	p := &PDFPartitioner{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var pageFilePattern = regexp.MustCompile(`page_(\d+)\.txt$`)

// Partition 解析PDF文件，按页提取文本并推断元素类型
func (p *PDFPartitioner) Partition(filePath string) ([]Element, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()

	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted text dir: %w", err)
	}

	pages := make(map[int][]string)
	var pageNums []int
	for _, e := range entries {
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			continue
		}
		if _, seen := pages[num]; !seen {
			pageNums = append(pageNums, num)
		}
		pages[num] = append(pages[num], decodeContentStream(data)...)
	}
	sort.Ints(pageNums)

	ordered := make([][]string, len(pageNums))
	for i, num := range pageNums {
		ordered[i] = pages[num]
	}
	elements := partitionPages(ordered, pageNums)

	if p.imageDir != "" {
		images, err := p.extractImages(filePath, conf)
		if err != nil {
			return nil, err
		}
		elements = append(elements, images...)
	}

	if len(elements) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}
	return elements, nil
}

// PartitionReader 从Reader解析PDF，先写入临时文件
func (p *PDFPartitioner) PartitionReader(r io.Reader, filename string) ([]Element, error) {
	tmp, err := os.CreateTemp("", "pdf_reader_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to buffer PDF content: %w", err)
	}
	tmp.Close()

	return p.Partition(tmp.Name())
}

// extractImages 导出PDF中的图片，每张图片生成一个Image元素
func (p *PDFPartitioner) extractImages(filePath string, conf *model.Configuration) ([]Element, error) {
	if err := os.MkdirAll(p.imageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	if err := api.ExtractImagesFile(filePath, p.imageDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	entries, err := os.ReadDir(p.imageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image dir: %w", err)
	}
	var images []Element
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		images = append(images, Element{Kind: KindImage, Text: e.Name()})
	}
	return images, nil
}

// partitionPages 识别页眉页脚后，将每页的行分组为元素
func partitionPages(pages [][]string, pageNums []int) []Element {
	firstLines := make(map[string]int)
	lastLines := make(map[string]int)
	for _, lines := range pages {
		if len(lines) == 0 {
			continue
		}
		firstLines[lines[0]]++
		lastLines[lines[len(lines)-1]]++
	}

	var elements []Element
	for i, lines := range pages {
		page := pageNums[i]
		var block []string

		flush := func() {
			if len(block) == 0 {
				return
			}
			kind := classifyBlock(block)
			sep := " "
			if kind == KindTable {
				sep = "\n"
			}
			elements = append(elements, Element{Kind: kind, Text: strings.Join(block, sep), Page: page})
			block = nil
		}

		for j, line := range lines {
			isFirst, isLast := j == 0, j == len(lines)-1
			switch {
			case isFirst && len(pages) > 1 && firstLines[line] > 1:
				elements = append(elements, Element{Kind: KindHeader, Text: line, Page: page})
			case isLast && (pageNumPattern.MatchString(line) || (len(pages) > 1 && lastLines[line] > 1)):
				flush()
				elements = append(elements, Element{Kind: KindFooter, Text: line, Page: page})
			case looksLikeTableRow(line):
				if len(block) > 0 && !looksLikeTableRow(block[len(block)-1]) {
					flush()
				}
				block = append(block, line)
			case looksLikeTitle(line) || captionPattern.MatchString(line) || looksLikeFormula(line):
				flush()
				block = append(block, line)
				flush()
			default:
				if len(block) > 0 && looksLikeTableRow(block[len(block)-1]) {
					flush()
				}
				block = append(block, line)
			}
		}
		flush()
	}
	return elements
}

// decodeContentStream 从页面内容流中提取文本行
// 只处理文本显示操作符 Tj TJ ' " 以及换行相关操作符
func decodeContentStream(data []byte) []string {
	var (
		lines    []string
		line     strings.Builder
		operands []string
	)
	flushLine := func() {
		s := strings.Join(strings.Fields(line.String()), " ")
		if s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			s, n := readLiteral(data[i:])
			operands = append(operands, s)
			i += n
		case c == '[' || c == ']':
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			for i < len(data) && (data[i] == '-' || data[i] == '.' || (data[i] >= '0' && data[i] <= '9')) {
				i++
			}
			// TJ 数组中较大的负偏移通常表示单词间距
			if v, err := strconv.ParseFloat(string(data[start:i]), 64); err == nil && v < -200 && len(operands) > 0 {
				operands = append(operands, " ")
			}
		case isRegular(c):
			start := i
			for i < len(data) && isRegular(data[i]) {
				i++
			}
			switch string(data[start:i]) {
			case "Tj", "TJ":
				line.WriteString(strings.Join(operands, ""))
			case "'", "\"":
				flushLine()
				line.WriteString(strings.Join(operands, ""))
			case "Td", "TD", "T*", "ET", "Tm":
				flushLine()
			}
			operands = operands[:0]
		default:
			i++
		}
	}
	flushLine()
	return lines
}

func isRegular(c byte) bool {
	if c <= ' ' {
		return false
	}
	return strings.IndexByte("()<>[]{}/%", c) < 0
}

// readLiteral 读取一个PDF字面量字符串，返回解码后的文本和消耗的字节数
func readLiteral(data []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		case '\\':
			i++
			if i >= len(data) {
				break
			}
			switch e := data[i]; e {
			case 'n', 'r':
				sb.WriteByte(' ')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					j := i
					for j < len(data) && j < i+3 && data[j] >= '0' && data[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(string(data[i:j]), 8, 8)
					sb.WriteByte(byte(v))
					i = j - 1
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String(), len(data)
}
