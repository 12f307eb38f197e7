package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Claude   ClaudeConfig   `mapstructure:"claude"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	History  HistoryConfig  `mapstructure:"history"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ClaudeConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
	CooldownSeconds int    `mapstructure:"cooldown_seconds"` // 限流后的冷却时间
	UtilityModel    string `mapstructure:"utility_model"`    // 质量评估/命名用的廉价模型
}

type QueueConfig struct {
	AnalysisQueue string `mapstructure:"analysis_queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
	PopTimeout    int    `mapstructure:"pop_timeout"` // BRPop 阻塞秒数
}

type AnalysisConfig struct {
	SyncDeadlineSeconds   int  `mapstructure:"sync_deadline_seconds"`   // 同步路径截止时间
	SmallContentThreshold int  `mapstructure:"small_content_threshold"` // 同步路径内容上限（字符）
	MaxContentSize        int  `mapstructure:"max_content_size"`
	ResultTTLHours        int  `mapstructure:"result_ttl_hours"`
	ChunkDelaySeconds     int  `mapstructure:"chunk_delay_seconds"` // 分块间隔，配合限流
	QualityCheck          bool `mapstructure:"quality_check"`
	FormatConsistency     bool `mapstructure:"format_consistency"`
	StaleAfterMinutes     int  `mapstructure:"stale_after_minutes"` // processing 状态超时回收
}

type HistoryConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite 或 mysql
	DSN           string `mapstructure:"dsn"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// ResultTTL 结果保留时长
func (c *AnalysisConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLHours) * time.Hour
}

// SyncDeadline 同步路径截止时长
func (c *AnalysisConfig) SyncDeadline() time.Duration {
	return time.Duration(c.SyncDeadlineSeconds) * time.Second
}

// StaleAfter processing 状态的回收阈值
func (c *AnalysisConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("claude.base_url", "https://api.anthropic.com")
	viper.SetDefault("claude.timeout_seconds", 300)
	viper.SetDefault("claude.max_attempts", 3)
	viper.SetDefault("claude.cooldown_seconds", 60)
	viper.SetDefault("claude.utility_model", "claude-3-haiku-20240307")

	viper.SetDefault("queue.analysis_queue", "analysis_jobs")
	viper.SetDefault("queue.max_workers", 1)
	viper.SetDefault("queue.pop_timeout", 5)

	viper.SetDefault("analysis.sync_deadline_seconds", 40)
	viper.SetDefault("analysis.small_content_threshold", 10000)
	viper.SetDefault("analysis.max_content_size", 100000)
	viper.SetDefault("analysis.result_ttl_hours", 24)
	viper.SetDefault("analysis.chunk_delay_seconds", 2)
	viper.SetDefault("analysis.quality_check", true)
	viper.SetDefault("analysis.format_consistency", false)
	viper.SetDefault("analysis.stale_after_minutes", 30)

	viper.SetDefault("history.driver", "sqlite")
	viper.SetDefault("history.dsn", "analysis_history.db")
	viper.SetDefault("history.retention_days", 30)

	viper.SetDefault("cors.allowed_origins", []string{"https://coda.io"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization"})
}
