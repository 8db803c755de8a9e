package client

import (
	"context"
	"strconv"
	"time"

	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/xerrors"
)

const (
	MetricCallsTotal      = "client_calls_total"
	MetricCallDurationSec = "client_call_duration_seconds"

	LabelOutcome = "outcome"
	LabelStatus  = "status"
)

type instruments struct {
	calls    metrics.Counter
	duration metrics.Histogram
}

func newInstruments(m metrics.Meter) (*instruments, error) {
	calls, err := m.Counter(MetricCallsTotal, "Outbound calls by dependency and outcome")
	if err != nil {
		return nil, err
	}
	duration, err := m.Histogram(MetricCallDurationSec, "Outbound call duration", metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &instruments{calls: calls, duration: duration}, nil
}

func (i *instruments) observe(ctx context.Context, dependency string, res Result, d time.Duration) {
	outcome := metrics.OutcomeSuccess
	if res.Kind != xerrors.KindUnknown {
		outcome = res.Kind.String()
	}
	labels := []metrics.Label{
		metrics.L(metrics.LabelDependency, dependency),
		metrics.L(LabelOutcome, outcome),
		metrics.L(LabelStatus, strconv.Itoa(res.Status)),
	}
	i.calls.Inc(ctx, labels...)
	i.duration.Record(ctx, d.Seconds(), labels[:2]...)
}
