package cache

import (
	"context"

	"github.com/ceyewan/gacha/metrics"
)

const (
	MetricRequests = "cache_requests_total"

	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

type instruments struct {
	mode     string
	requests metrics.Counter
}

func newInstruments(m metrics.Meter, mode string) (*instruments, error) {
	requests, err := m.Counter(MetricRequests, "Cache lookups by result")
	if err != nil {
		return nil, err
	}
	return &instruments{mode: mode, requests: requests}, nil
}

func (i *instruments) observe(ctx context.Context, result string) {
	i.requests.Inc(ctx, metrics.L("mode", i.mode), metrics.L("result", result))
}
