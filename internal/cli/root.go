// Package cli 命令行入口：serve 启动HTTP服务，ingest 单次入库，chat 入库后交互问答
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	qaconfig "github.com/fyerfyer/multirep-qa/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragqa",
	Short: "Multi-representation document question answering",
	Long: `Ingests PDF, Markdown and text documents by summarizing every text chunk,
table and image description, indexing the summaries and answering questions
from the original content they point to.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
}

// Execute 运行根命令
func Execute() error {
	return rootCmd.Execute()
}

// loadApp 加载配置并组装组件
func loadApp(withQueue bool) (*App, error) {
	cfg, err := qaconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApp(cfg, withQueue)
}
