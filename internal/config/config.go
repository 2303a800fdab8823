// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Search        SearchConfig        `mapstructure:"search"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	Topic      string `mapstructure:"topic"`
	GroupID    string `mapstructure:"group_id"`
	// RetryDelay 是任务失败后第一次重试前的等待时间，之后每次翻倍。
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses          string `mapstructure:"addresses"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	APIKey             string `mapstructure:"api_key"`
	ProductIndex       string `mapstructure:"product_index"`
	ReviewIndex        string `mapstructure:"review_index"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于归档向量快照。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型及重试策略相关的配置。
type EmbeddingConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// LLMConfig 存储评论生成所用的大语言模型配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// PipelineConfig 存储向量化入库流程的配置。
type PipelineConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	RecreateIndex bool          `mapstructure:"recreate_index"`
	FlushAttempts int           `mapstructure:"flush_attempts"`
	SnapshotDir   string        `mapstructure:"snapshot_dir"`
	// UploadSnapshot 为 true 时将快照文件上传到 MinIO。
	UploadSnapshot bool   `mapstructure:"upload_snapshot"`
	ReviewSource   string `mapstructure:"review_source"` // mysql 或 file
	ReviewsFile    string `mapstructure:"reviews_file"`
}

// SearchConfig 存储语义检索的配置。
type SearchConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Defaults 为未配置的字段填充默认值。
func (c *Config) Defaults() {
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 3
	}
	if c.Embedding.BaseDelay <= 0 {
		c.Embedding.BaseDelay = time.Second
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 60 * time.Second
	}
	if c.Elasticsearch.ProductIndex == "" {
		c.Elasticsearch.ProductIndex = "product_embeddings"
	}
	if c.Elasticsearch.ReviewIndex == "" {
		c.Elasticsearch.ReviewIndex = "product_reviews_embeddings"
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 5
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 2
	}
	if c.Pipeline.BatchDelay < 0 {
		c.Pipeline.BatchDelay = 0
	}
	if c.Pipeline.FlushAttempts <= 0 {
		c.Pipeline.FlushAttempts = 1
	}
	if c.Pipeline.SnapshotDir == "" {
		c.Pipeline.SnapshotDir = "snapshots"
	}
	if c.Pipeline.ReviewSource == "" {
		c.Pipeline.ReviewSource = "mysql"
	}
	if c.Pipeline.ReviewsFile == "" {
		c.Pipeline.ReviewsFile = "product_reviews.json"
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 5
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "smarthomes-semantic-consumer"
	}
	if c.Kafka.RetryDelay <= 0 {
		c.Kafka.RetryDelay = 5 * time.Second
	}
}

// Load 从指定路径读取 YAML 配置，并允许 SMARTHOMES_ 前缀的环境变量覆盖。
// 例如 SMARTHOMES_EMBEDDING_API_KEY 覆盖 embedding.api_key。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SMARTHOMES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 未出现在配置文件中的键需要显式绑定，AutomaticEnv 才能生效
	for _, key := range []string{"embedding.api_key", "elasticsearch.api_key", "elasticsearch.password", "llm.api_key", "database.mysql.dsn"} {
		_ = v.BindEnv(key)
	}
	v.SetDefault("pipeline.batch_delay", time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.Defaults()
	return &cfg, nil
}
