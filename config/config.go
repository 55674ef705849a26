// Package config 加载 qcaudit 运行配置：配置文件 + QCAUDIT_ 前缀环境变量 + 默认值
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/validation"
)

// EnvPrefix 环境变量前缀，如 QCAUDIT_STORAGE_DRIVER
const EnvPrefix = "QCAUDIT"

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
	Log     LogConfig     `mapstructure:"log"`
	IDs     IDConfig      `mapstructure:"ids"`
}

type StorageConfig struct {
	// Driver 取值 memory、sqlite、badger
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	CacheSize int    `mapstructure:"cache_size"`
}

type EventsConfig struct {
	// Transport 取值 sync、nats、redis
	Transport string      `mapstructure:"transport"`
	NATS      NATSConfig  `mapstructure:"nats"`
	Redis     RedisConfig `mapstructure:"redis"`
	Retry     RetryConfig `mapstructure:"retry"`
}

type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	MaxLen int64  `mapstructure:"max_len"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type IDConfig struct {
	Node int64 `mapstructure:"node"`
}

var (
	drivers    = []string{"memory", "sqlite", "badger"}
	transports = []string{"sync", "nats", "redis"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.cache_size", 1024)
	v.SetDefault("events.transport", "sync")
	v.SetDefault("events.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.nats.stream", "QCAUDIT")
	v.SetDefault("events.redis.addr", "127.0.0.1:6379")
	v.SetDefault("events.redis.max_len", 0)
	v.SetDefault("events.retry.max_attempts", 3)
	v.SetDefault("events.retry.initial_delay", "20ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("ids.node", 1)
}

// Default 仅含默认值与环境变量覆盖的配置
func Default() (*Config, error) {
	return Load("")
}

// Load 读取配置文件；path 为空时跳过文件，只用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "读取配置文件失败")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "解析配置失败")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Events.Transport = strings.ToLower(strings.TrimSpace(c.Events.Transport))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate 校验枚举项与数值范围
func (c *Config) Validate() error {
	if err := validation.All(
		validation.ValidateEnum(c.Storage.Driver, "storage.driver", drivers),
		validation.ValidateEnum(c.Events.Transport, "events.transport", transports),
		validation.ValidateNonNegative(c.Storage.CacheSize, "storage.cache_size"),
		validation.ValidatePositive(c.Events.Retry.MaxAttempts, "events.retry.max_attempts"),
	); err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return errors.NewErrorf(errors.ErrCodeValidation, "未知的日志级别: %q", c.Log.Level).
			WithContext("field", "log.level")
	}
	if c.IDs.Node < 0 || c.IDs.Node > 1023 {
		return errors.NewErrorf(errors.ErrCodeValidation, "ids.node 超出范围 [0,1023]: %d", c.IDs.Node).
			WithContext("field", "ids.node")
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		return errors.NewError(errors.ErrCodeValidation, "sqlite 需要 storage.dsn").
			WithContext("field", "storage.dsn")
	}
	return nil
}

// LogLevel 解析后的日志级别
func (c *Config) LogLevel() logging.Level {
	lv, _ := logging.ParseLevel(c.Log.Level)
	return lv
}
