package breaker

import (
	"sync"
	"time"
)

// transitionFunc 状态变更回调，在锁外调用
type transitionFunc func(name string, from, to State)

// CircuitBreaker 单个依赖的熔断状态机
//
// 所有方法都接收 now，锁只保护内存状态，不跨越网络调用。
// 不变量：state == OPEN 时 lastFailure 非零且 failureCount >= FailureThreshold。
type CircuitBreaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	probeInFlight bool
	probeStarted  time.Time

	onTransition transitionFunc
}

// NewCircuitBreaker 创建处于 CLOSED 状态的熔断器
func NewCircuitBreaker(name string, cfg *Config) (*CircuitBreaker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &CircuitBreaker{name: name, cfg: c, state: StateClosed}, nil
}

// Name 依赖名
func (b *CircuitBreaker) Name() string { return b.name }

// Attempt 判断是否允许发起调用
func (b *CircuitBreaker) Attempt(now time.Time) Permission {
	b.mu.Lock()
	from := b.state
	allowed := true

	switch b.state {
	case StateOpen:
		if now.Sub(b.lastFailure) <= b.cfg.ResetTimeout {
			allowed = false
			break
		}
		if b.cfg.HalfOpenProbe {
			b.state = StateHalfOpen
			b.probeInFlight = true
			b.probeStarted = now
		} else {
			b.state = StateClosed
			b.failureCount = 0
		}
	case StateHalfOpen:
		// 探测请求丢失结果时，超时后允许下一个探测
		if b.probeInFlight && now.Sub(b.probeStarted) <= b.cfg.ResetTimeout {
			allowed = false
			break
		}
		b.probeInFlight = true
		b.probeStarted = now
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	if !allowed {
		return Permission{Allowed: false, Reason: ErrOpenState}
	}
	return Permission{Allowed: true}
}

// RecordSuccess 记录一次 2xx 调用
func (b *CircuitBreaker) RecordSuccess(_ time.Time) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.probeInFlight = false
	}
	// OPEN 下迟到的成功不影响状态
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// RecordFailure 记录一次传输层失败
func (b *CircuitBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	from := b.state
	b.failureCount++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.probeInFlight = false
		if b.failureCount < b.cfg.FailureThreshold {
			b.failureCount = b.cfg.FailureThreshold
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// RecordRemoteError 远端返回非 2xx，不改变状态，仅释放半开探测名额
func (b *CircuitBreaker) RecordRemoteError(_ time.Time) {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
	b.mu.Unlock()
}

// State 当前状态，不做超时判断
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 返回当前状态快照
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}

func (b *CircuitBreaker) notify(from, to State) {
	if from != to && b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}
