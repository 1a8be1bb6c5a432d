package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Chat     ChatConfig
	Catalog  CatalogConfig
	Storage  StorageConfig
	AI       AIConfig
	Download DownloadConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Chat.Endpoint = strings.TrimSpace(cfg.Chat.Endpoint)
	switch cfg.Chat.QuestionField {
	case "question", "query":
	default:
		return nil, fmt.Errorf("invalid CHAT_QUESTION_FIELD value %q: want question or query", cfg.Chat.QuestionField)
	}
	if cfg.Chat.HistoryWindow < 1 {
		cfg.Chat.HistoryWindow = 1
	}

	switch cfg.Storage.Backend {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND value %q", cfg.Storage.Backend)
	}

	cfg.AI.APIKey = strings.TrimSpace(cfg.AI.APIKey)
	cfg.AI.AccessKey = strings.TrimSpace(cfg.AI.AccessKey)
	cfg.AI.SecretKey = strings.TrimSpace(cfg.AI.SecretKey)
	cfg.AI.Model = strings.TrimSpace(cfg.AI.Model)

	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Addr 由 Port 推导。
	Addr string
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// ChatConfig 描述问答服务的调用方式。
type ChatConfig struct {
	// Endpoint 为空时使用本地模型回答。
	Endpoint      string        `env:"CHAT_ENDPOINT"`
	QuestionField string        `env:"CHAT_QUESTION_FIELD" envDefault:"question"`
	Timeout       time.Duration `env:"CHAT_TIMEOUT" envDefault:"45s"`
	HistoryWindow int           `env:"CHAT_HISTORY_WINDOW" envDefault:"6"`
	MaxResults    int           `env:"CHAT_MAX_RESULTS" envDefault:"5"`
}

// CatalogConfig 描述文档目录与文件服务。
type CatalogConfig struct {
	BaseURL string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8000"`
	Remote  bool          `env:"CATALOG_REMOTE" envDefault:"false"`
	Timeout time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
}

const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// StorageConfig 选择对话记录的持久化后端。
type StorageConfig struct {
	Backend     string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	Dir         string        `env:"STORAGE_DIR" envDefault:"./data/transcripts"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix string        `env:"REDIS_PREFIX" envDefault:"constitution-portal"`
	RedisTTL    time.Duration `env:"REDIS_TTL" envDefault:"720h"`
}

// DownloadConfig 描述下载临时文件的处理。
type DownloadConfig struct {
	BlobDir      string        `env:"DOWNLOAD_BLOB_DIR"`
	ReleaseDelay time.Duration `env:"DOWNLOAD_RELEASE_DELAY" envDefault:"1s"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"Model"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	TopP        *float64 `env:"ARK_TOP_P"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
