package config

import (
	"strings"

	"github.com/ceyewan/gacha/clog"
)

// Config 加载器配置
type Config struct {
	Name      string         // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string       // 搜索路径，默认 [".", "./configs"]
	File      string         // 显式指定配置文件，设置后忽略 Name/Paths
	FileType  string         // yaml / json / toml，默认 yaml
	EnvPrefix string         // 环境变量前缀，默认 "GACHA"
	Defaults  map[string]any // 默认值，同时让环境变量能覆盖配置文件中不存在的 key

	Logger clog.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./configs"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "GACHA"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	if c.Logger == nil {
		c.Logger = clog.Discard()
	}
	return nil
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newLoader(cfg), nil
}
