package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Description 单张图片的描述结果
type Description struct {
	ImagePath string // 图片路径
	Text      string // 描述文本
	Cached    bool   // 是否复用了已有的 .txt 文件
}

// 支持的图片扩展名
var imageMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// MimeForPath 根据扩展名返回MIME类型，不支持的返回空串
func MimeForPath(path string) string {
	return imageMimes[strings.ToLower(filepath.Ext(path))]
}

// DescribeDirectory 为目录下每张图片生成描述，并写入同名 .txt 文件
// 已存在且非空的 .txt 直接复用；单张图片失败只记录日志并跳过
func DescribeDirectory(ctx context.Context, captioner Captioner, dir string, logger *logrus.Logger) ([]Description, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || MimeForPath(entry.Name()) == "" {
			continue
		}
		images = append(images, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(images)

	results := make([]Description, 0, len(images))
	for _, path := range images {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
		if data, err := os.ReadFile(sidecar); err == nil {
			if text := strings.TrimSpace(string(data)); text != "" {
				results = append(results, Description{ImagePath: path, Text: text, Cached: true})
				continue
			}
		}

		image, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("image", path).Warn("Failed to read image")
			continue
		}

		text, err := captioner.Describe(ctx, image, MimeForPath(path))
		if err != nil {
			logger.WithFields(logrus.Fields{
				"image": path,
				"model": captioner.Name(),
			}).WithError(err).Warn("Failed to describe image")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			logger.WithField("image", path).Warn("Empty image description")
			continue
		}

		if err := os.WriteFile(sidecar, []byte(text), 0644); err != nil {
			logger.WithError(err).WithField("file", sidecar).Warn("Failed to write image description")
		}
		results = append(results, Description{ImagePath: path, Text: text})
	}

	logger.WithFields(logrus.Fields{
		"dir":    dir,
		"images": len(images),
		"ok":     len(results),
	}).Info("Image descriptions ready")
	return results, nil
}

// Texts 提取描述文本
func Texts(descriptions []Description) []string {
	texts := make([]string, len(descriptions))
	for i, d := range descriptions {
		texts[i] = d.Text
	}
	return texts
}
