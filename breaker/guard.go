package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

// GuardConfig 基础设施熔断配置（失败率模型）
//
//	guard:
//	  max_requests: 1
//	  timeout: 30s
//	  failure_ratio: 0.6
//	  minimum_requests: 10
type GuardConfig struct {
	// MaxRequests 半开状态允许通过的请求数（默认 1）
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Interval 闭合状态的统计周期，0 表示不清空
	Interval time.Duration `mapstructure:"interval"`

	// Timeout 打开状态持续时间（默认 30s）
	Timeout time.Duration `mapstructure:"timeout"`

	// FailureRatio 失败率阈值（默认 0.6）
	FailureRatio float64 `mapstructure:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数（默认 10）
	MinimumRequests uint32 `mapstructure:"minimum_requests"`
}

func (c *GuardConfig) validate() error {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "failure_ratio must be in [0,1], got %v", c.FailureRatio)
	}
	return nil
}

// Guard 按 key 隔离的 gobreaker 熔断器，保护缓存、消息队列这类可降级的调用
type Guard struct {
	cfg    GuardConfig
	logger clog.Logger
	ins    *instruments

	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[any]
}

// NewGuard 创建 Guard，cfg 为 nil 时使用默认值
func NewGuard(cfg *GuardConfig, opts ...Option) (*Guard, error) {
	if cfg == nil {
		cfg = &GuardConfig{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	ins, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}
	return &Guard{cfg: c, logger: o.logger, ins: ins}, nil
}

// Execute 在 key 对应的熔断器保护下执行 fn
//
// 熔断打开或半开名额用尽时返回 ErrOpenState，不调用 fn。
func (g *Guard) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := g.getOrCreate(key).Execute(fn)
	switch {
	case err == nil:
		g.ins.observe(key, ResultSuccess)
	case xerrors.Is(err, gobreaker.ErrOpenState), xerrors.Is(err, gobreaker.ErrTooManyRequests):
		g.ins.observe(key, ResultRejected)
		g.logger.Debug("guarded call rejected", clog.String("key", key))
		return nil, ErrOpenState
	default:
		g.ins.observe(key, ResultFailure)
	}
	return result, err
}

// State 返回 key 的状态，未使用过的 key 视为 CLOSED
func (g *Guard) State(key string) State {
	v, ok := g.breakers.Load(key)
	if !ok {
		return StateClosed
	}
	return fromGobreaker(v.(*gobreaker.CircuitBreaker[any]).State())
}

func (g *Guard) getOrCreate(key string) *gobreaker.CircuitBreaker[any] {
	if v, ok := g.breakers.Load(key); ok {
		return v.(*gobreaker.CircuitBreaker[any])
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        key,
		MaxRequests: g.cfg.MaxRequests,
		Interval:    g.cfg.Interval,
		Timeout:     g.cfg.Timeout,
		ReadyToTrip: g.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			f, t := fromGobreaker(from), fromGobreaker(to)
			g.ins.transition(name, f, t)
			g.logger.Info("guard state changed",
				clog.String("key", name),
				clog.String("from", f.String()),
				clog.String("to", t.String()))
		},
	})
	actual, _ := g.breakers.LoadOrStore(key, cb)
	return actual.(*gobreaker.CircuitBreaker[any])
}

func (g *Guard) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < g.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= g.cfg.FailureRatio
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
