package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/api/middleware"
	qaconfig "github.com/fyerfyer/multirep-qa/config"
	"github.com/fyerfyer/multirep-qa/internal/cache"
	"github.com/fyerfyer/multirep-qa/internal/database"
	"github.com/fyerfyer/multirep-qa/internal/docstore"
	"github.com/fyerfyer/multirep-qa/internal/document"
	"github.com/fyerfyer/multirep-qa/internal/embedding"
	"github.com/fyerfyer/multirep-qa/internal/ingest"
	"github.com/fyerfyer/multirep-qa/internal/llm"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
	"github.com/fyerfyer/multirep-qa/internal/repository"
	"github.com/fyerfyer/multirep-qa/internal/retriever"
	"github.com/fyerfyer/multirep-qa/internal/services"
	"github.com/fyerfyer/multirep-qa/internal/summarize"
	"github.com/fyerfyer/multirep-qa/internal/vectordb"
	"github.com/fyerfyer/multirep-qa/internal/vision"
	"github.com/fyerfyer/multirep-qa/pkg/storage"
	"github.com/fyerfyer/multirep-qa/pkg/taskqueue"
)

// App 按配置组装好的全部组件
type App struct {
	Config    *qaconfig.Config
	Logger    *logrus.Logger
	Store     *multirep.Store
	Pipeline  *services.Pipeline
	QA        *services.QAService
	Ingestion *services.IngestionService
	Queue     *taskqueue.RedisQueue // 未启用队列时为空

	closers []io.Closer
}

// Close 释放所有资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to release resource")
		}
	}
	if err := database.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close database")
	}
}

// NewApp 根据配置创建全部组件
// withQueue 为假时即使配置启用了队列也不连接
func NewApp(cfg *qaconfig.Config, withQueue bool) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: setupLogger(cfg.Log),
	}
	if closer := setupLogFile(cfg.Log); closer != nil {
		app.closers = append(app.closers, closer)
	}

	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	files, err := setupStorage(cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize storage: %w", err))
	}

	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedding client: %w", err))
	}

	index, err := setupVectorIndex(cfg.VectorDB, cfg.Embed, embedder)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize vector index: %w", err))
	}
	app.closers = append(app.closers, index)

	content, err := docstore.NewStore(docstore.Config{
		Type:          cfg.DocStore.Type,
		RedisAddr:     cfg.DocStore.RedisAddr,
		RedisPassword: cfg.DocStore.RedisPassword,
		RedisDB:       cfg.DocStore.RedisDB,
		RedisKey:      cfg.DocStore.RedisKey,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize content store: %w", err))
	}
	app.closers = append(app.closers, content)

	app.Store = multirep.NewStore(index, content, multirep.WithLogger(app.Logger))
	// 索引与内容存储可能只有一侧持久化，重启后先修复两侧差异
	if _, err := app.Store.Reconcile(context.Background()); err != nil {
		return fail(fmt.Errorf("failed to reconcile store: %w", err))
	}

	summarizer, err := setupSummarizer(cfg.Summarizer, app.Logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize summarizer: %w", err))
	}

	ingestor, err := ingest.New(app.Store,
		ingest.WithConfig(ingest.Config{
			BatchSize:       cfg.Ingest.BatchSize,
			MaxRetries:      cfg.Ingest.MaxRetries,
			BaseBackoff:     cfg.Ingest.BaseBackoff,
			MaxBackoff:      cfg.Ingest.MaxBackoff,
			InterBatchDelay: cfg.Ingest.InterBatchDelay,
		}),
		ingest.WithLogger(app.Logger))
	if err != nil {
		return fail(err)
	}

	pipelineOpts := []services.PipelineOption{
		services.WithChunkConfig(document.ChunkConfig{
			CombineUnderChars: cfg.Document.CombineUnderChars,
			MaxCharacters:     cfg.Document.MaxCharacters,
			NewAfterChars:     cfg.Document.NewAfterChars,
		}),
		services.WithLogger(app.Logger),
	}
	if cfg.Vision.Enable {
		captioner, err := vision.NewCaptioner(cfg.Vision.Provider,
			vision.WithAPIKey(cfg.Vision.APIKey),
			vision.WithBaseURL(cfg.Vision.Endpoint),
			vision.WithModel(cfg.Vision.Model),
			vision.WithPrompt(cfg.Vision.Prompt),
			vision.WithTimeout(cfg.Vision.Timeout))
		if err != nil {
			return fail(fmt.Errorf("failed to initialize vision client: %w", err))
		}
		pipelineOpts = append(pipelineOpts, services.WithCaptioner(captioner))
	}
	app.Pipeline = services.NewPipeline(summarizer, ingestor, app.Store, pipelineOpts...)

	answerer, err := setupSynthesizer(cfg.LLM)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize LLM client: %w", err))
	}

	qaOpts := []services.QAOption{services.WithQALogger(app.Logger)}
	if cfg.Cache.Enable {
		answerCache, err := cache.NewCache(cache.Config{
			Type:            cfg.Cache.Type,
			RedisAddr:       cfg.Cache.Address,
			RedisPassword:   cfg.Cache.Password,
			RedisDB:         cfg.Cache.DB,
			KeyPrefix:       cfg.Cache.KeyPrefix,
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cache.DefaultConfig().CleanupInterval,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize cache: %w", err))
		}
		qaOpts = append(qaOpts, services.WithCache(answerCache, app.Store, cfg.Cache.TTL))
	}
	app.QA = services.NewQAService(
		retriever.New(app.Store, retriever.WithK(cfg.Retrieval.K), retriever.WithLogger(app.Logger)),
		answerer, qaOpts...)

	ingestionOpts := []services.IngestionOption{
		services.WithImageRoot(cfg.Storage.ImageRoot),
		services.WithWorkDir(cfg.Storage.WorkDir),
		services.WithProcessTimeout(cfg.Ingest.ProcessTimeout),
		services.WithIngestionLogger(app.Logger),
	}
	if withQueue && cfg.Queue.Enable {
		queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			Timeout:       cfg.Queue.Timeout,
			Queues:        taskqueue.DefaultConfig().Queues,
		}, taskqueue.WithLogger(app.Logger))
		if err != nil {
			return fail(fmt.Errorf("failed to initialize task queue: %w", err))
		}
		app.Queue = queue
		app.closers = append(app.closers, queue)
		ingestionOpts = append(ingestionOpts, services.WithTaskQueue(queue))
	}
	app.Ingestion = services.NewIngestionService(app.Pipeline,
		repository.NewRunRepository(), files, ingestionOpts...)

	return app, nil
}

// setupLogger 配置进程日志
func setupLogger(cfg qaconfig.LogConfig) *logrus.Logger {
	middleware.SetLevel(cfg.Level)
	logger := middleware.GetLogger()
	if logger.Level >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return logger
}

func setupLogFile(cfg qaconfig.LogConfig) io.Closer {
	if cfg.File == "" {
		return nil
	}
	return middleware.SetupFileOutput(middleware.FileOutput{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

func setupStorage(cfg qaconfig.StorageConfig) (storage.Storage, error) {
	return storage.NewStorage(storage.Config{
		Type:  cfg.Type,
		Local: storage.LocalConfig{Path: cfg.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		},
	})
}

func setupEmbedding(cfg qaconfig.EmbedConfig) (embedding.Client, error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithBaseURL(cfg.Endpoint),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, embedding.WithBatchSize(cfg.BatchSize))
	}
	return embedding.NewClient(cfg.Provider, opts...)
}

func setupVectorIndex(cfg qaconfig.VectorDBConfig, embed qaconfig.EmbedConfig, embedder embedding.Client) (*vectordb.Index, error) {
	dim := cfg.Dim
	if dim == 0 {
		dim = embed.Dimensions
	}
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.Type,
		Path:              cfg.Path,
		Dimension:         dim,
		DistanceType:      vectordb.DistanceType(cfg.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		return nil, err
	}

	batch := embed.BatchSize
	if batch <= 0 {
		batch = 16
	}
	return vectordb.NewIndex(embedder, repo, vectordb.WithEmbedBatching(batch, 1)), nil
}

func setupSummarizer(cfg qaconfig.SummarizerConfig, logger *logrus.Logger) (*summarize.Summarizer, error) {
	client, err := llm.NewClient(cfg.Provider,
		llm.WithAPIKey(cfg.APIKey),
		llm.WithBaseURL(cfg.Endpoint),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature))
	if err != nil {
		return nil, err
	}

	opts := []summarize.Option{
		summarize.WithMaxTokens(cfg.MaxTokens),
		summarize.WithTemperature(cfg.Temperature),
		summarize.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, summarize.WithRateLimit(cfg.RateLimit, cfg.Burst))
	}
	return summarize.New(client, opts...), nil
}

func setupSynthesizer(cfg qaconfig.LLMConfig) (*llm.Synthesizer, error) {
	opts := []llm.Option{
		llm.WithAPIKey(cfg.APIKey),
		llm.WithBaseURL(cfg.Endpoint),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(cfg.Timeout))
	}
	client, err := llm.NewClient(cfg.Provider, opts...)
	if err != nil {
		return nil, err
	}
	return llm.NewSynthesizer(client,
		llm.WithAnswerMaxTokens(cfg.MaxTokens),
		llm.WithAnswerTemperature(cfg.Temperature)), nil
}
