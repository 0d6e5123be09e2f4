package document

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkConfig 按标题分块的配置
type ChunkConfig struct {
	CombineUnderChars int // 小于该长度的相邻块会被合并
	MaxCharacters     int // 单个块的硬上限
	NewAfterChars     int // 超过该长度后开始新块（软上限）
}

// DefaultChunkConfig 返回默认分块配置
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		CombineUnderChars: 2000,
		MaxCharacters:     4000,
		NewAfterChars:     3800,
	}
}

// TitleChunker 按标题划分章节后再按长度分块
type TitleChunker struct {
	config ChunkConfig
}

// NewTitleChunker 创建新的分块器
func NewTitleChunker(config ChunkConfig) *TitleChunker {
	if config.MaxCharacters <= 0 {
		config.MaxCharacters = DefaultChunkConfig().MaxCharacters
	}
	if config.NewAfterChars <= 0 || config.NewAfterChars > config.MaxCharacters {
		config.NewAfterChars = config.MaxCharacters
	}
	if config.CombineUnderChars > config.MaxCharacters {
		config.CombineUnderChars = config.MaxCharacters
	}
	return &TitleChunker{config: config}
}

// Chunk 将叙述性元素分块，输出 CompositeElement
// 每个 Title 开启新章节，章节内部按长度累积
func (c *TitleChunker) Chunk(elements []Element) []Element {
	var sections [][]Element
	var current []Element
	for _, el := range elements {
		if el.Kind == KindTitle && len(current) > 0 {
			sections = append(sections, current)
			current = nil
		}
		current = append(current, el)
	}
	if len(current) > 0 {
		sections = append(sections, current)
	}

	var chunks []Element
	for _, section := range sections {
		chunks = append(chunks, c.chunkSection(section)...)
	}
	return c.combineSmall(chunks)
}

// chunkSection 在单个章节内按长度切块
func (c *TitleChunker) chunkSection(section []Element) []Element {
	var chunks []Element
	var sb strings.Builder
	page := 0

	flush := func() {
		text := strings.TrimSpace(sb.String())
		if text != "" {
			chunks = append(chunks, Element{Kind: KindCompositeElement, Text: text, Page: page})
		}
		sb.Reset()
		page = 0
	}

	for _, el := range section {
		for _, piece := range c.splitOversized(el.Text) {
			size := runeLen(sb.String())
			if size > 0 && (size >= c.config.NewAfterChars || size+2+runeLen(piece) > c.config.MaxCharacters) {
				flush()
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			if page == 0 {
				page = el.Page
			}
			sb.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// combineSmall 合并过小的相邻块，合并后不超过硬上限
func (c *TitleChunker) combineSmall(chunks []Element) []Element {
	if c.config.CombineUnderChars <= 0 || len(chunks) <= 1 {
		return chunks
	}

	var result []Element
	for _, chunk := range chunks {
		if n := len(result); n > 0 {
			prev := result[n-1]
			prevLen := runeLen(prev.Text)
			if prevLen < c.config.CombineUnderChars &&
				runeLen(chunk.Text) < c.config.CombineUnderChars &&
				prevLen+2+runeLen(chunk.Text) <= c.config.MaxCharacters {
				result[n-1].Text = prev.Text + "\n\n" + chunk.Text
				continue
			}
		}
		result = append(result, chunk)
	}
	return result
}

// splitOversized 超过硬上限的文本按空白切分
func (c *TitleChunker) splitOversized(text string) []string {
	text = strings.TrimSpace(text)
	limit := c.config.MaxCharacters
	if runeLen(text) <= limit {
		return []string{text}
	}

	var pieces []string
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}
		// 尽量在空白处断开，避免单词被截断
		cut := end
		for cut > start && !unicode.IsSpace(runes[cut]) {
			cut--
		}
		if cut == start {
			cut = end
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))
		start = cut
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
