// Package config 负责加载和管理客户端的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充，只在 main 中使用。
var Conf Config

// Config 是整个客户端的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

// ServerConfig 存储本地 UI 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorageConfig 选择会话持久化后端。
// driver: bolt（默认，本地文件）| redis | sqlite | mysql
type StorageConfig struct {
	Driver    string      `mapstructure:"driver"`
	BoltPath  string      `mapstructure:"bolt_path"`
	DSN       string      `mapstructure:"dsn"`
	KeyPrefix string      `mapstructure:"key_prefix"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EndpointConfig 描述远端问答服务。
type EndpointConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	ChatPath  string        `mapstructure:"chat_path"`
	ResetPath string        `mapstructure:"reset_path"`
	Timeout   time.Duration `mapstructure:"timeout"` // 0 表示不设超时
}

// ChatConfig 控制会话展示相关的常量。
type ChatConfig struct {
	DefaultTitle   string `mapstructure:"default_title"`
	TitleMaxLength int    `mapstructure:"title_max_length"`
	ApologyText    string `mapstructure:"apology_text"`
}

// setDefaults 为每个键注册默认值。AutomaticEnv 只覆盖 viper 已知的键，
// 没有默认值的键在 yaml 缺省时无法通过 CHAT_* 环境变量设置。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.bolt_path", "./data/conversations.bolt")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.key_prefix", "default")
	v.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("endpoint.base_url", "http://127.0.0.1:5000")
	v.SetDefault("endpoint.chat_path", "/api/chat")
	v.SetDefault("endpoint.reset_path", "/api/reset")
	v.SetDefault("endpoint.timeout", "0s")
	v.SetDefault("chat.default_title", "New Conversation")
	v.SetDefault("chat.title_max_length", 30)
	v.SetDefault("chat.apology_text", "Sorry, there was an error processing your request. Please try again.")
}

// Load 从指定路径读取 YAML 配置；文件不存在时仅使用默认值与环境变量。
// 环境变量以 CHAT_ 为前缀，层级用下划线连接，例如 CHAT_ENDPOINT_BASE_URL。
func Load(configPath string) (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.Chat.TitleMaxLength <= 0 {
		return nil, fmt.Errorf("chat.title_max_length must be positive, got %d", cfg.Chat.TitleMaxLength)
	}
	return &cfg, nil
}

// Init 加载配置到全局 Conf，失败时 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
