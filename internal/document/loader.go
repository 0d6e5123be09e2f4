package document

import "fmt"

// Loaded 文档加载结果
type Loaded struct {
	Elements []Element // 分区器输出的全部元素
	Chunks   []Element // 叙述性元素分块后的结果
	Tables   []Element // 独立保留的表格
}

// Load 分区、过滤并分块一个文档
func Load(filePath, imageDir string, config ChunkConfig) (*Loaded, error) {
	partitioner, err := PartitionerFactory(filePath, imageDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, filePath)
	}

	elements, err := partitioner.Partition(filePath)
	if err != nil {
		return nil, err
	}

	narrative, tables := Filter(elements)
	chunks := NewTitleChunker(config).Chunk(narrative)

	return &Loaded{
		Elements: elements,
		Chunks:   chunks,
		Tables:   tables,
	}, nil
}
