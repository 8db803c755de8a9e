package client

import (
	"net/http"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/metrics"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	httpClient *http.Client
}

func defaultOptions() *options {
	return &options{logger: clog.Discard(), meter: metrics.Discard()}
}

// WithLogger 设置 Logger，自动追加 namespace "client"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("client")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithHTTPClient 替换底层 http.Client，忽略 Config.Timeout
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}
