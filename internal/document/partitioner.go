package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Partitioner 文档分区器接口
// 负责将不同格式的文档解析为有序的结构化元素
type Partitioner interface {
	// Partition 解析文件，返回结构化元素
	Partition(filePath string) ([]Element, error)

	// PartitionReader 从Reader解析文档
	// filename用于确定文档类型
	PartitionReader(r io.Reader, filename string) ([]Element, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ErrUnsupportedType 不支持的文档类型
var ErrUnsupportedType = errors.New("unsupported document type")

// PartitionerFactory 根据文件类型创建对应的分区器
// imageDir 非空时，PDF中的图片会被导出到该目录
func PartitionerFactory(filePath string, imageDir string) (Partitioner, error) {
	switch DetectContentType(filePath) {
	case PDF:
		return NewPDFPartitioner(WithImageOutput(imageDir)), nil
	case Markdown:
		return NewMarkdownPartitioner(), nil
	case PlainText:
		return NewPlainTextPartitioner(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}
