// Package config 提供基于 Viper 的配置加载与热更新。
//
// 优先级（高到低）：环境变量 > .env > 环境特定配置 (config.<env>.yaml) > 基础配置 > 默认值
//
//	loader, err := config.New(&config.Config{
//	    Name:      "profile",
//	    Paths:     []string{"./configs"},
//	    EnvPrefix: "GACHA",
//	    Defaults:  map[string]any{"http.addr": ":5002"},
//	})
//	if err := loader.Load(ctx); err != nil { ... }
//	var cfg app.Config
//	_ = loader.Unmarshal(&cfg)
//
// 通过 Watch 订阅单个 key 的变更，例如热更新日志级别。
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置并开始监听文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体（mapstructure 标签）
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// ConfigFileUsed 返回实际加载的配置文件路径，未加载时为空
	ConfigFileUsed() string
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Timestamp time.Time
}
