package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// FileInfo 文件元数据
type FileInfo struct {
	ID       string `json:"id"`        // 文件唯一标识符
	Name     string `json:"name"`      // 原始文件名
	Size     int64  `json:"size"`      // 文件大小(字节)
	MimeType string `json:"mime_type"` // 文件MIME类型
	Path     string `json:"path"`      // 存储内部路径
}

// Storage 上传文件存储接口
// 文件按 FileInfo.Path 寻址
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error)

	// Open 读取文件内容
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete 删除文件
	Delete(ctx context.Context, path string) error

	// Exists 检查文件是否存在
	Exists(ctx context.Context, path string) (bool, error)

	// LocalPath 返回可供解析器直接读取的本地路径
	// 远端存储会把文件下载到 scratchDir 下
	LocalPath(ctx context.Context, info FileInfo, scratchDir string) (string, error)
}

// Config 存储配置
type Config struct {
	Type  string      // "local" 或 "minio"
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO配置
}

// NewStorage 根据配置创建存储
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// getMimeType 根据扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// objectName 生成按日期分目录的存储路径
func objectName(id, filename string, year int, month int, day int) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s%s", year, month, day, id, strings.ToLower(filepath.Ext(filename)))
}
