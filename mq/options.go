package mq

import (
	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/metrics"
)

// Config MQ 配置
//
//	mq:
//	  subject_prefix: ""
type Config struct {
	// SubjectPrefix 所有主题的前缀，用于在同一集群内隔离环境
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Option 客户端选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	guard  *breaker.Guard
}

func newOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，自动追加 Namespace "mq"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("mq")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithGuard 发布经过该 Guard 熔断，未设置时内部创建默认 Guard
func WithGuard(g *breaker.Guard) Option {
	return func(o *options) {
		o.guard = g
	}
}

// PublishOption 单次发布选项
type PublishOption func(*publishOptions)

type publishOptions struct {
	headers Headers
}

// WithHeaders 附加消息头
func WithHeaders(h Headers) PublishOption {
	return func(o *publishOptions) {
		o.headers = h.Clone()
	}
}

// SubscribeOption 订阅选项
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	queueGroup string
}

// WithQueueGroup 同组内每条消息只投递给一个订阅者
func WithQueueGroup(group string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.queueGroup = group
	}
}
