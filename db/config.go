package db

import (
	"strings"
	"time"

	"gorm.io/gorm/logger"

	"github.com/ceyewan/gacha/xerrors"
)

// Config DB 组件配置
type Config struct {
	// SlowThreshold 超过该耗时的 SQL 以 warn 级别记录，默认 200ms
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	// LogLevel SQL 日志级别：silent | error | warn | info，默认 warn
	LogLevel string `mapstructure:"log_level"`

	// EnableTracing 注册 otelgorm 插件，为每条 SQL 生成 span
	EnableTracing bool `mapstructure:"enable_tracing"`
}

func (c *Config) setDefaults() {
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func (c *Config) validate() error {
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLogLevel(s string) (logger.LogLevel, error) {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent, nil
	case "error":
		return logger.Error, nil
	case "warn", "":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	default:
		return logger.Warn, xerrors.Wrapf(ErrInvalidConfig, "unknown log_level %q", s)
	}
}
