// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Regulations RegulationsConfig `yaml:"regulations" mapstructure:"regulations"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" mapstructure:"embeddings"`
	Analyze     AnalyzeConfig     `yaml:"analyze" mapstructure:"analyze"`
	Cluster     ClusterConfig     `yaml:"cluster" mapstructure:"cluster"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the persisted pipeline artifacts.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the run-log database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegulationsConfig holds regulations.gov API settings.
type RegulationsConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	RatePerMinute int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// AnthropicConfig holds Anthropic API settings for stance classification.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// EmbeddingsConfig holds the embedding service settings for clustering.
type EmbeddingsConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// AnalyzeConfig configures the classification scheduler.
type AnalyzeConfig struct {
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int      `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffSecs     int      `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	CheckpointEvery int      `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	TruncateChars   int      `yaml:"truncate_chars" mapstructure:"truncate_chars"`
	Themes          []string `yaml:"themes" mapstructure:"themes"`
}

// Timeout returns the per-call classification timeout.
func (c AnalyzeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Backoff returns the initial retry backoff.
func (c AnalyzeConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSecs) * time.Second
}

// ClusterConfig configures the cluster annotation phase.
type ClusterConfig struct {
	K                  int     `yaml:"k" mapstructure:"k"` // 0 = choose via elbow
	MaxK               int     `yaml:"max_k" mapstructure:"max_k"`
	SubclusterMinShare float64 `yaml:"subcluster_min_share" mapstructure:"subcluster_min_share"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docket_runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("regulations.base_url", "https://api.regulations.gov/v4")
	v.SetDefault("regulations.rate_per_minute", 50)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("embeddings.base_url", "https://api.openai.com/v1")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.batch_size", 100)
	v.SetDefault("analyze.batch_size", 10)
	v.SetDefault("analyze.timeout_secs", 60)
	v.SetDefault("analyze.max_retries", 3)
	v.SetDefault("analyze.backoff_secs", 2)
	v.SetDefault("analyze.checkpoint_every", 50)
	v.SetDefault("analyze.truncate_chars", 0)
	v.SetDefault("cluster.k", 0)
	v.SetDefault("cluster.max_k", 12)
	v.SetDefault("cluster.subcluster_min_share", 0.35)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
