package cache

import (
	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/metrics"
)

// Option 缓存组件选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	redisConn connector.RedisConnector
	guard     *breaker.Guard
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，自动追加 Namespace "cache"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRedisConnector 注入 Redis 连接器 (仅用于分布式模式)
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

// WithGuard Redis 命令经过该 Guard 熔断，未设置时内部创建默认 Guard
func WithGuard(g *breaker.Guard) Option {
	return func(o *options) {
		o.guard = g
	}
}
