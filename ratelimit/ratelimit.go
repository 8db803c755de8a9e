// Package ratelimit 基于 golang.org/x/time/rate 的单机令牌桶限流。
//
//	limiter := ratelimit.New(&ratelimit.Config{Rate: 20, Burst: 40}, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//
//	r.Use(ratelimit.GinMiddleware(limiter, nil))
//
// 每个 key（默认为客户端 IP）拥有独立的令牌桶，空闲超过 IdleTimeout 的桶会被回收。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/xerrors"
)

var (
	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")
	// ErrInvalidLimit 限流规则无效
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid limit")
)

// MetricDecisions 限流决策计数，标签: result=allowed|denied
const MetricDecisions = "ratelimit_decisions_total"

// Config 限流配置，Rate 为 0 表示关闭
//
//	ratelimit:
//	  rate: 20
//	  burst: 40
type Config struct {
	Rate            float64       `mapstructure:"rate"`  // 每秒生成的令牌数
	Burst           int           `mapstructure:"burst"` // 桶容量，默认 2*Rate
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.Burst <= 0 {
		c.Burst = int(2 * c.Rate)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// Enabled 是否启用限流
func (c *Config) Enabled() bool { return c != nil && c.Rate > 0 }

type bucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// Limiter 按 key 隔离的令牌桶
type Limiter struct {
	cfg     Config
	logger  clog.Logger
	counter metrics.Counter

	buckets   sync.Map // map[string]*bucket
	stopCh    chan struct{}
	closeOnce sync.Once
}

// New 创建限流器并启动回收协程
func New(cfg *Config, opts ...Option) (*Limiter, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Rate < 0 {
		return nil, ErrInvalidLimit
	}
	c.setDefaults()

	o := newOptions(opts)
	counter, err := o.meter.Counter(MetricDecisions, "Rate limit decisions")
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:     c,
		logger:  o.logger,
		counter: counter,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup()
	return l, nil
}

// Allow 尝试获取 1 个令牌，不阻塞
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if l.cfg.Rate <= 0 {
		return true, nil
	}

	b := l.bucket(key)
	now := time.Now()
	b.mu.Lock()
	allowed := b.limiter.AllowN(now, 1)
	b.lastSeen = now
	b.mu.Unlock()

	result := "allowed"
	if !allowed {
		result = "denied"
		l.logger.DebugContext(ctx, "rate limited", clog.String("key", key))
	}
	l.counter.Inc(ctx, metrics.L("result", result))
	return allowed, nil
}

func (l *Limiter) bucket(key string) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst),
		lastSeen: time.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(key, b)
	return actual.(*bucket)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()
		if idle > l.cfg.IdleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	if count > 0 {
		l.logger.Debug("cleaned up idle limiters", clog.Int("count", count))
	}
	return count
}

// Close 停止回收协程，可重复调用
func (l *Limiter) Close() error {
	l.closeOnce.Do(func() { close(l.stopCh) })
	return nil
}
