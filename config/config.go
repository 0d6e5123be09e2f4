package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	VectorDB   VectorDBConfig   `mapstructure:"vectordb"`
	DocStore   DocStoreConfig   `mapstructure:"docstore"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Embed      EmbedConfig      `mapstructure:"embed"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Document   DocumentConfig   `mapstructure:"document"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"` // CORS允许的来源
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`        // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorageConfig 上传文件存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local 或 minio
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	ImageRoot string `mapstructure:"image_root"` // 每次入库的图片目录根路径
	WorkDir   string `mapstructure:"work_dir"`
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type"` // memory 或 faiss
	Path     string `mapstructure:"path"`
	Dim      int    `mapstructure:"dim"`
	Distance string `mapstructure:"distance"` // cosine, l2, dot
}

// DocStoreConfig 原文内容存储配置
type DocStoreConfig struct {
	Type          string `mapstructure:"type"` // memory, redis, sqlite
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

// LLMConfig 生成答案使用的模型
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // tongyi, groq, openai
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SummarizerConfig 摘要模型配置
type SummarizerConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	RateLimit   float64 `mapstructure:"rate_limit"` // 每秒请求数，0表示不限
	Burst       int     `mapstructure:"burst"`
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"` // tongyi, openai, gemini, local
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

// VisionConfig 图片描述模型配置
type VisionConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Provider string        `mapstructure:"provider"` // gemini 或 openai
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Prompt   string        `mapstructure:"prompt"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IngestConfig 分批入库配置
type IngestConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	InterBatchDelay time.Duration `mapstructure:"inter_batch_delay"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	K int `mapstructure:"k"`
}

// CacheConfig 答案缓存配置
type CacheConfig struct {
	Enable    bool          `mapstructure:"enable"`
	Type      string        `mapstructure:"type"` // memory 或 redis
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// QueueConfig 异步入库队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig 入库记录数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// DocumentConfig 文档分块配置
type DocumentConfig struct {
	CombineUnderChars int `mapstructure:"combine_under_chars"`
	MaxCharacters     int `mapstructure:"max_characters"`
	NewAfterChars     int `mapstructure:"new_after_chars"`
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时写出一份默认配置
func Load(configPath string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandSecrets(&cfg)
	return &cfg, nil
}

// expandSecrets 替换 ${ENV} 形式的密钥
func expandSecrets(cfg *Config) {
	for _, s := range []*string{
		&cfg.LLM.APIKey,
		&cfg.Summarizer.APIKey,
		&cfg.Embed.APIKey,
		&cfg.Vision.APIKey,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
		&cfg.DocStore.RedisPassword,
	} {
		*s = expandEnv(*s)
	}
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "multirep")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.image_root", "./data/images")
	v.SetDefault("storage.work_dir", "./data/work")

	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.dim", 0)
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("docstore.type", "memory")
	v.SetDefault("docstore.redis_addr", "localhost:6379")
	v.SetDefault("docstore.redis_key", "multirep:docstore")

	v.SetDefault("llm.provider", "tongyi")
	v.SetDefault("llm.api_key", "${DASHSCOPE_API_KEY}")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("summarizer.provider", "groq")
	v.SetDefault("summarizer.model", "gemma2-9b-it")
	v.SetDefault("summarizer.api_key", "${GROQ_API_KEY}")
	v.SetDefault("summarizer.max_tokens", 512)
	v.SetDefault("summarizer.temperature", 0)
	v.SetDefault("summarizer.rate_limit", 0.5)
	v.SetDefault("summarizer.burst", 1)

	v.SetDefault("embed.provider", "gemini")
	v.SetDefault("embed.model", "models/embedding-001")
	v.SetDefault("embed.api_key", "${GOOGLE_API_KEY}")
	v.SetDefault("embed.batch_size", 16)

	v.SetDefault("vision.enable", true)
	v.SetDefault("vision.provider", "gemini")
	v.SetDefault("vision.model", "gemini-1.5-flash")
	v.SetDefault("vision.api_key", "${GOOGLE_API_KEY}")
	v.SetDefault("vision.timeout", "60s")

	v.SetDefault("ingest.batch_size", 3)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.base_backoff", "60s")
	v.SetDefault("ingest.max_backoff", "300s")
	v.SetDefault("ingest.inter_batch_delay", "10s")
	v.SetDefault("ingest.process_timeout", "2h")

	v.SetDefault("retrieval.k", 4)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.key_prefix", "multirep:qa:")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.timeout", "2h")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/multirep.db")

	v.SetDefault("document.combine_under_chars", 2000)
	v.SetDefault("document.max_characters", 4000)
	v.SetDefault("document.new_after_chars", 3800)
}
