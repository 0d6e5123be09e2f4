package document

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PlainTextPartitioner 纯文本分区器
// 以空行分隔文本块，每个块推断一个元素类型
type PlainTextPartitioner struct{}

// NewPlainTextPartitioner 创建一个新的纯文本分区器
func NewPlainTextPartitioner() Partitioner {
	return &PlainTextPartitioner{}
}

// Partition 解析纯文本文件
func (p *PlainTextPartitioner) Partition(filePath string) ([]Element, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}
	defer file.Close()

	return p.PartitionReader(file, filePath)
}

// PartitionReader 从Reader解析纯文本
func (p *PlainTextPartitioner) PartitionReader(r io.Reader, filename string) ([]Element, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	return partitionBlocks(string(content), 0), nil
}

// partitionBlocks 按空行切分文本块并分类
func partitionBlocks(text string, page int) []Element {
	var elements []Element
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
		elements = append(elements, Element{
			Kind: kind,
			Text: strings.Join(block, sep),
			Page: page,
		})
		block = nil
	}

	for _, line := range normalizeLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		block = append(block, trimmed)
	}
	flush()

	return elements
}
