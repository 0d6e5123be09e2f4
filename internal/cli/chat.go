package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/multirep-qa/internal/services"
)

var chatK int

var chatCmd = &cobra.Command{
	Use:   "chat [file]",
	Short: "Ingest a document and ask questions about it",
	Long: `Ingests the document like the ingest command, then reads questions from
standard input until one of quit, exit, q or stop is entered.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&imagesDir, "images", "i", "", "directory with images for this document")
	chatCmd.Flags().IntVarP(&chatK, "top-k", "k", 0, "number of items to retrieve, 0 uses retrieval.k")
	rootCmd.AddCommand(chatCmd)
}

// exitWords 结束交互的输入
var exitWords = map[string]bool{
	"quit": true,
	"exit": true,
	"q":    true,
	"stop": true,
}

// Asker 问答接口
type Asker interface {
	Ask(ctx context.Context, question string, k int) (*services.AnswerResult, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	app, err := loadApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processing document: %s\n", args[0])
	result, err := ingestFile(ctx, app, args[0], imagesDir)
	if err != nil {
		return fmt.Errorf("error processing document: %w", err)
	}
	printSummary(out, result)

	return chatLoop(ctx, cmd.InOrStdin(), out, app.QA, chatK)
}

func printSummary(out io.Writer, result *services.ProcessResult) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(out, line)
	fmt.Fprintf(out, "Elements processed: %d\n", result.ElementsProcessed)
	fmt.Fprintf(out, "Text chunks: %d\n", result.TextChunks)
	fmt.Fprintf(out, "Tables: %d\n", result.Tables)
	fmt.Fprintf(out, "Images: %d\n", result.Images)
	fmt.Fprintf(out, "Committed: %d, skipped: %d\n", result.Report.Committed, result.Report.Skipped)
	for _, dropped := range result.Report.DroppedCategories {
		fmt.Fprintf(out, "Dropped %s: %s\n", dropped.Category, dropped.Reason)
	}
	fmt.Fprintln(out, line)
}

// chatLoop 逐行读取问题并输出答案
// 单个问题失败只打印错误，输入结束或读到退出词时返回
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, asker Asker, k int) error {
	fmt.Fprintln(out, "Ask questions about your document. Type 'quit' or 'exit' to stop.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Your question: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if exitWords[strings.ToLower(question)] {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if question == "" {
			fmt.Fprintln(out, "Please enter a valid question.")
			continue
		}

		result, err := asker.Ask(ctx, question, k)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error processing question: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nAnswer: %s\n\n", result.Answer)
		fmt.Fprintln(out, strings.Repeat("-", 50))
	}
}
