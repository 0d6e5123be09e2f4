package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/multirep-qa/internal/services"
)

var imagesDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a single document and print the report",
	Long: `Partitions the document, summarizes text chunks and tables, describes the
images found in --images and commits everything to the configured stores.
The ingestion report is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&imagesDir, "images", "i", "", "directory with images for this document")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := loadApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := ingestFile(ctx, app, args[0], imagesDir)
	if result != nil {
		data, jsonErr := json.MarshalIndent(result, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("failed to marshal report: %w", jsonErr)
		}
		cmd.Println(string(data))
	}
	return err
}

// ingestFile 检查文件后执行流水线
// 未指定图片目录时使用图片根目录下以文件名命名的子目录，PDF中的图片会导出到这里
func ingestFile(ctx context.Context, app *App, path, images string) (*services.ProcessResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if images == "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		images = filepath.Join(app.Config.Storage.ImageRoot, name)
	}
	return app.Pipeline.Process(ctx, path, images)
}
