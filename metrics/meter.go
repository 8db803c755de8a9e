// Package metrics 基于 OpenTelemetry + Prometheus 的指标组件。
//
// 每个服务创建一个 Meter，通过 Handler() 暴露 /metrics：
//
//	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "profile"})
//	router.GET("/metrics", gin.WrapH(meter.Handler()))
//
//	calls, _ := meter.Counter("gacha_client_calls_total", "Outbound calls by dependency")
//	calls.Inc(ctx, metrics.L("dependency", "payment"), metrics.L("outcome", "success"))
package metrics

import (
	"context"
	"net/http"
)

// Counter 单调递增计数器
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 瞬时值
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
}

// Histogram 分布，例如请求耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂
type Meter interface {
	Counter(name, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取端点
	Handler() http.Handler

	Shutdown(ctx context.Context) error
}

// Label 指标标签。避免使用用户名、请求 ID 这类高基数值。
type Label struct {
	Key   string
	Value string
}

// L 创建 Label
func L(key, value string) Label { return Label{Key: key, Value: value} }

// MetricOption 指标选项
type MetricOption func(*metricOptions)

type metricOptions struct {
	unit    string
	buckets []float64
}

// WithUnit 设置单位，例如 "s"
func WithUnit(unit string) MetricOption {
	return func(o *metricOptions) { o.unit = unit }
}

// WithBuckets 设置直方图的桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *metricOptions) { o.buckets = buckets }
}

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: profile
//	  version: v1.0.0
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`

	// EnableRuntime 采集 Go 运行时指标（goroutine、GC、内存）
	EnableRuntime bool `mapstructure:"enable_runtime"`
}
