// Package content 定义入库流程中的内容类型及分类逻辑
package content

import (
	"github.com/fyerfyer/multirep-qa/internal/document"
)

// Kind 元素类型，只有文本和表格两种
type Kind int

const (
	KindText Kind = iota + 1
	KindTable
)

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Category 摘要所属类别
type Category string

const (
	CategoryText  Category = "text"
	CategoryTable Category = "table"
	CategoryImage Category = "image"
)

// Categories 按入库顺序排列的全部类别
var Categories = []Category{CategoryText, CategoryTable, CategoryImage}

// Category 返回元素类型对应的摘要类别
func (k Kind) Category() Category {
	if k == KindTable {
		return CategoryTable
	}
	return CategoryText
}

// Element 已分类的内容单元，创建后不再修改
type Element struct {
	Kind       Kind   `json:"kind"`
	RawContent string `json:"raw_content"`
}

// SummaryRecord 摘要与其原始内容的对应关系
type SummaryRecord struct {
	Category      Category `json:"category"`
	Summary       string   `json:"summary"`
	SourceContent string   `json:"source_content"`
}

// Result 分类结果
type Result struct {
	Elements      []Element // 全部元素，文本在前，表格在后
	TextElements  []Element
	TableElements []Element
}

// Texts 返回文本元素的原始内容
func (r *Result) Texts() []string {
	return rawContents(r.TextElements)
}

// Tables 返回表格元素的原始内容
func (r *Result) Tables() []string {
	return rawContents(r.TableElements)
}

func rawContents(elements []Element) []string {
	out := make([]string, len(elements))
	for i, el := range elements {
		out[i] = el.RawContent
	}
	return out
}

// Categorize 将分块后的文本和表格标记为对应类型
// 表格追加在全部文本之后，两个子序列保持原有相对顺序
func Categorize(texts, tables []string) *Result {
	res := &Result{
		Elements:      make([]Element, 0, len(texts)+len(tables)),
		TextElements:  make([]Element, 0, len(texts)),
		TableElements: make([]Element, 0, len(tables)),
	}
	for _, t := range texts {
		el := Element{Kind: KindText, RawContent: t}
		res.Elements = append(res.Elements, el)
		res.TextElements = append(res.TextElements, el)
	}
	for _, t := range tables {
		el := Element{Kind: KindTable, RawContent: t}
		res.Elements = append(res.Elements, el)
		res.TableElements = append(res.TableElements, el)
	}
	return res
}

// FromDocument 根据分区器的元素类型进行分类
// 调用方需事先过滤掉页眉、页脚、图片、图注和公式
func FromDocument(chunks, tables []document.Element) *Result {
	var texts, tbls []string
	for _, el := range append(append([]document.Element{}, chunks...), tables...) {
		if el.Kind == document.KindTable {
			tbls = append(tbls, el.Text)
		} else {
			texts = append(texts, el.Text)
		}
	}
	return Categorize(texts, tbls)
}
