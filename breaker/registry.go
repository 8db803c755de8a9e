package breaker

import (
	"sort"
	"sync"

	"github.com/ceyewan/gacha/clog"
)

// Registry 按依赖名管理熔断器，所有依赖共享同一份 Config
//
// 熔断器在首次使用时创建，也可以通过 Register 在启动时预先创建。
type Registry struct {
	cfg    Config
	logger clog.Logger
	clock  Clock
	ins    *instruments

	breakers sync.Map // map[string]*CircuitBreaker
}

// NewRegistry 创建熔断器注册表，cfg 为 nil 时使用 DefaultConfig
func NewRegistry(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
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

	o.logger.Info("circuit breaker registry created",
		clog.Int("failure_threshold", c.FailureThreshold),
		clog.Duration("reset_timeout", c.ResetTimeout),
		clog.Bool("half_open_probe", c.HalfOpenProbe))

	return &Registry{cfg: c, logger: o.logger, clock: o.clock, ins: ins}, nil
}

// Register 预先创建熔断器
func (r *Registry) Register(names ...string) {
	for _, name := range names {
		r.Get(name)
	}
}

// Get 获取或创建指定依赖的熔断器
func (r *Registry) Get(name string) *CircuitBreaker {
	if v, ok := r.breakers.Load(name); ok {
		return v.(*CircuitBreaker)
	}

	b := &CircuitBreaker{name: name, cfg: r.cfg, state: StateClosed, onTransition: r.onTransition}
	actual, _ := r.breakers.LoadOrStore(name, b)
	return actual.(*CircuitBreaker)
}

// Clock 返回注册表使用的时间源
func (r *Registry) Clock() Clock { return r.clock }

// Attempt 判断是否允许调用 name
func (r *Registry) Attempt(name string) Permission {
	if name == "" {
		return Permission{Allowed: false, Reason: ErrKeyEmpty}
	}
	p := r.Get(name).Attempt(r.clock.Now())
	if !p.Allowed {
		r.ins.observe(name, ResultRejected)
		r.logger.Debug("call rejected by open circuit", clog.String("service", name))
	}
	return p
}

// RecordSuccess 记录 2xx
func (r *Registry) RecordSuccess(name string) {
	r.Get(name).RecordSuccess(r.clock.Now())
	r.ins.observe(name, ResultSuccess)
}

// RecordFailure 记录传输层失败
func (r *Registry) RecordFailure(name string) {
	r.Get(name).RecordFailure(r.clock.Now())
	r.ins.observe(name, ResultFailure)
}

// RecordRemoteError 记录远端非 2xx，不改变熔断状态
func (r *Registry) RecordRemoteError(name string) {
	r.Get(name).RecordRemoteError(r.clock.Now())
	r.ins.observe(name, ResultRemoteError)
}

// Snapshots 返回所有熔断器快照，按名称排序
func (r *Registry) Snapshots() []Snapshot {
	var out []Snapshot
	r.breakers.Range(func(_, v any) bool {
		out = append(out, v.(*CircuitBreaker).Snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) onTransition(name string, from, to State) {
	r.ins.transition(name, from, to)
	if to == StateOpen {
		r.logger.Warn("circuit opened due to consecutive transport failures",
			clog.String("service", name),
			clog.String("from", from.String()))
		return
	}
	r.logger.Info("circuit breaker state changed",
		clog.String("service", name),
		clog.String("from", from.String()),
		clog.String("to", to.String()))
}
