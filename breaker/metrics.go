package breaker

import (
	"context"

	"github.com/ceyewan/gacha/metrics"
)

const (
	// MetricRequestsTotal 请求总数，按结果分组
	MetricRequestsTotal = "breaker_requests_total"

	// MetricFailuresTotal 计入熔断的传输失败数
	MetricFailuresTotal = "breaker_failures_total"

	// MetricRejectsTotal 被熔断拒绝的请求数
	MetricRejectsTotal = "breaker_rejects_total"

	// MetricStateChanges 状态变更次数
	MetricStateChanges = "breaker_state_changes_total"

	LabelService   = "service"
	LabelResult    = "result"
	LabelFromState = "from_state"
	LabelToState   = "to_state"

	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultRemoteError = "remote_error"
	ResultRejected    = "rejected"
)

type instruments struct {
	requests     metrics.Counter
	failures     metrics.Counter
	rejects      metrics.Counter
	stateChanges metrics.Counter
}

func newInstruments(m metrics.Meter) (*instruments, error) {
	var (
		ins instruments
		err error
	)
	if ins.requests, err = m.Counter(MetricRequestsTotal, "Calls observed by the circuit breaker"); err != nil {
		return nil, err
	}
	if ins.failures, err = m.Counter(MetricFailuresTotal, "Transport failures counted by the circuit breaker"); err != nil {
		return nil, err
	}
	if ins.rejects, err = m.Counter(MetricRejectsTotal, "Calls rejected while the circuit is open"); err != nil {
		return nil, err
	}
	if ins.stateChanges, err = m.Counter(MetricStateChanges, "Circuit breaker state transitions"); err != nil {
		return nil, err
	}
	return &ins, nil
}

func (i *instruments) observe(name, result string) {
	ctx := context.Background()
	i.requests.Inc(ctx, metrics.L(LabelService, name), metrics.L(LabelResult, result))
	switch result {
	case ResultFailure:
		i.failures.Inc(ctx, metrics.L(LabelService, name))
	case ResultRejected:
		i.rejects.Inc(ctx, metrics.L(LabelService, name))
	}
}

func (i *instruments) transition(name string, from, to State) {
	i.stateChanges.Inc(context.Background(),
		metrics.L(LabelService, name),
		metrics.L(LabelFromState, from.String()),
		metrics.L(LabelToState, to.String()))
}
