package document

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ElementKind 文档结构元素类型
type ElementKind string

const (
	KindTitle            ElementKind = "Title"
	KindNarrativeText    ElementKind = "NarrativeText"
	KindListItem         ElementKind = "ListItem"
	KindHeader           ElementKind = "Header"
	KindFooter           ElementKind = "Footer"
	KindImage            ElementKind = "Image"
	KindFigureCaption    ElementKind = "FigureCaption"
	KindFormula          ElementKind = "Formula"
	KindTable            ElementKind = "Table"
	KindCompositeElement ElementKind = "CompositeElement"
)

// Element 分区器输出的结构化元素
type Element struct {
	Kind ElementKind `json:"kind"`
	Text string      `json:"text"`
	Page int         `json:"page,omitempty"` // 页码，从1开始；非分页文档为0
}

// droppedKinds 入库前需要丢弃的元素类型
var droppedKinds = map[ElementKind]bool{
	KindHeader:        true,
	KindFooter:        true,
	KindImage:         true,
	KindFigureCaption: true,
	KindFormula:       true,
}

// Filter 拆分元素：返回待分块的叙述性元素和独立的表格元素
// 页眉、页脚、图片、图注、公式被丢弃
func Filter(elements []Element) (narrative []Element, tables []Element) {
	for _, el := range elements {
		switch {
		case el.Kind == KindTable:
			tables = append(tables, el)
		case droppedKinds[el.Kind]:
			continue
		default:
			narrative = append(narrative, el)
		}
	}
	return narrative, tables
}

// CountByKind 统计各类型元素数量
func CountByKind(elements []Element) map[ElementKind]int {
	counts := make(map[ElementKind]int)
	for _, el := range elements {
		counts[el.Kind]++
	}
	return counts
}

var (
	captionPattern  = regexp.MustCompile(`^(?i)(figure|fig\.)\s*\d+`)
	pageNumPattern  = regexp.MustCompile(`^(?i)(page\s*)?\d+(\s*(of|/)\s*\d+)?$`)
	columnSeparator = regexp.MustCompile(`\t|\s{2,}|\|`)
	formulaPattern  = regexp.MustCompile(`^[\s\dA-Za-z()\[\]{}+\-*/^=<>≤≥∑∫√πσμλαβγδ.,_|]+$`)
)

// looksLikeTitle 判断单行文本是否像标题
func looksLikeTitle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > 80 {
		return false
	}
	if len(strings.Fields(line)) > 10 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(line)
	if strings.ContainsRune(".,;:!?", last) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

// looksLikeTableRow 至少有三列的行视为表格行
func looksLikeTableRow(line string) bool {
	line = strings.Trim(strings.TrimSpace(line), "|")
	if line == "" {
		return false
	}
	cells := 0
	for _, c := range columnSeparator.Split(line, -1) {
		if strings.TrimSpace(c) != "" {
			cells++
		}
	}
	return cells >= 3
}

// looksLikeFormula 含等号且只由数学符号组成的短行
func looksLikeFormula(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "=") || utf8.RuneCountInString(line) > 120 {
		return false
	}
	if len(strings.Fields(line)) > 12 {
		return false
	}
	return formulaPattern.MatchString(line)
}

// classifyBlock 根据文本块内容推断元素类型
func classifyBlock(lines []string) ElementKind {
	if len(lines) == 0 {
		return KindNarrativeText
	}
	if len(lines) == 1 {
		line := strings.TrimSpace(lines[0])
		switch {
		case captionPattern.MatchString(line):
			return KindFigureCaption
		case looksLikeFormula(line):
			return KindFormula
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			return KindListItem
		case looksLikeTitle(line):
			return KindTitle
		}
		return KindNarrativeText
	}

	tableRows := 0
	for _, l := range lines {
		if looksLikeTableRow(l) {
			tableRows++
		}
	}
	if tableRows == len(lines) {
		return KindTable
	}
	if captionPattern.MatchString(strings.TrimSpace(lines[0])) {
		return KindFigureCaption
	}
	return KindNarrativeText
}

// normalizeLines 统一换行符并拆分为行
func normalizeLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
