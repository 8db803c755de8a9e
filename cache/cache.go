// Package cache 提供读多写少数据的缓存，支持本地内存（otter）与 Redis 两种模式。
//
// 值在写入时序列化（json 或 msgpack），读取时反序列化到 dest，两种模式的语义一致：
// 写入后修改原对象不会影响缓存内容。
//
// Redis 模式下所有命令都经过 breaker.Guard，Redis 不可用时快速失败，
// 调用方应把任何错误当作未命中，回源读取：
//
//	c, _ := cache.New(&cache.Config{Mode: "distributed", Prefix: "catalog:"},
//	    cache.WithRedisConnector(redisConn), cache.WithGuard(guard), cache.WithLogger(logger))
//
//	var g Gacha
//	if err := c.Get(ctx, "gacha:rose", &g); err != nil {
//	    // cache.ErrMiss 或 Redis 故障，回源
//	}
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/gacha/xerrors"
)

// ErrMiss 缓存未命中
var ErrMiss = xerrors.WithKind(xerrors.New("cache: miss"), xerrors.KindNotFound)

// Cache 缓存组件的核心能力
type Cache interface {
	// Set 写入，ttl <= 0 时使用 Config.TTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get 读取到 dest，未命中返回 ErrMiss
	Get(ctx context.Context, key string, dest any) error
	// Delete 删除若干 key，不存在的 key 忽略
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// New 根据 Config.Mode 创建缓存实例
//
// "standalone"（默认）创建本地内存缓存；"distributed" 需要通过 WithRedisConnector 注入连接器。
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	ins, err := newInstruments(o.meter, c.Mode)
	if err != nil {
		return nil, err
	}

	switch c.Mode {
	case ModeDistributed:
		if o.redisConn == nil {
			return nil, xerrors.Wrap(ErrInvalidConfig, "redis connector is required for distributed mode")
		}
		return newRedis(o.redisConn, &c, o, ins)
	default:
		return newStandalone(&c, o, ins)
	}
}
