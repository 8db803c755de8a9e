// Package breaker 提供服务间调用的熔断器。
//
// 包含两部分：
//   - CircuitBreaker / Registry：按依赖名独立的熔断状态机，时间作为输入，
//     只统计传输层失败（连接拒绝、超时），远端 4xx/5xx 不改变状态
//   - Guard：基于 gobreaker 的 Execute 风格熔断，保护 Redis、NATS 等基础设施调用
//
// 基本使用：
//
//	reg, _ := breaker.NewRegistry(&breaker.Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second},
//	    breaker.WithLogger(logger))
//	if p := reg.Attempt("payment"); !p.Allowed {
//	    return p.Reason // breaker.ErrOpenState
//	}
//	resp, err := doRequest()
//	if err != nil {
//	    reg.RecordFailure("payment")
//	} else if resp.StatusCode < 300 {
//	    reg.RecordSuccess("payment")
//	} else {
//	    reg.RecordRemoteError("payment")
//	}
package breaker

import (
	"time"

	"github.com/ceyewan/gacha/xerrors"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen 仅在 Config.HalfOpenProbe 开启时出现
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpenState 熔断打开，请求被快速拒绝
	ErrOpenState = xerrors.WithKind(xerrors.New("circuit breaker is open"), xerrors.KindBreakerOpen)

	// ErrKeyEmpty 依赖名为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker key is empty")
)

// Config 熔断配置
//
//	breaker:
//	  failure_threshold: 3
//	  reset_timeout: 10s
//	  half_open_probe: false
type Config struct {
	// FailureThreshold 连续传输失败多少次后打开（默认 3）
	FailureThreshold int `mapstructure:"failure_threshold"`

	// ResetTimeout 打开后距最后一次失败超过该时长即恢复（默认 10s）
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`

	// HalfOpenProbe 超时后先放行一个探测请求，成功才关闭
	HalfOpenProbe bool `mapstructure:"half_open_probe"`
}

// DefaultConfig 默认配置：3 次失败，10 秒后完全重置
func DefaultConfig() *Config {
	return &Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second}
}

func (c *Config) validate() error {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 10 * time.Second
	}
	if c.FailureThreshold < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.ResetTimeout < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "reset_timeout must be positive, got %s", c.ResetTimeout)
	}
	return nil
}

// Permission Attempt 的结果
type Permission struct {
	Allowed bool
	Reason  error // 不允许时为 ErrOpenState
}

// Snapshot 熔断器的只读快照，用于健康检查
type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Clock 时间源，测试中替换
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 使用 time.Now
var SystemClock Clock = systemClock{}
