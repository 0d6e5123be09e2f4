package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/multirep-qa/api"
	"github.com/fyerfyer/multirep-qa/api/handler"
	"github.com/fyerfyer/multirep-qa/pkg/taskqueue"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API. When the task queue is enabled the ingestion worker
runs in the same process with concurrency 1 and shares the pipeline.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := loadApp(true)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.Logger

	handlers := api.Handlers{
		Document: handler.NewDocumentHandler(app.Ingestion),
		QA:       handler.NewQAHandler(app.QA),
		Store:    handler.NewStoreHandler(app.Store, app.Queue != nil),
	}

	if app.Queue != nil {
		handlers.Task = handler.NewTaskHandler(app.Queue)

		worker := taskqueue.NewRedisWorker(app.Queue, nil)
		worker.RegisterHandler(taskqueue.TaskIngestDocument, app.Ingestion)
		if err := worker.Start(); err != nil {
			return fmt.Errorf("start ingestion worker: %w", err)
		}
		defer worker.Stop()
		logger.Info("Ingestion worker started")
	}

	port := app.Config.Server.Port
	if servePort > 0 {
		port = servePort
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.Config.Server.Host, port),
		Handler: api.SetupRouter(handlers, app.Config.Server.AllowOrigins),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
