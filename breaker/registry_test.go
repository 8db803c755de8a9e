package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistry_IndependentBreakers(t *testing.T) {
	clock := &fakeClock{now: t0}
	reg, err := NewRegistry(nil, WithClock(clock))
	require.NoError(t, err)
	reg.Register("catalog", "payment")

	for i := 0; i < 3; i++ {
		require.True(t, reg.Attempt("payment").Allowed)
		reg.RecordFailure("payment")
	}

	assert.False(t, reg.Attempt("payment").Allowed)
	assert.True(t, reg.Attempt("catalog").Allowed)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "catalog", snaps[0].Name)
	assert.Equal(t, "CLOSED", snaps[0].State)
	assert.Equal(t, "payment", snaps[1].Name)
	assert.Equal(t, "OPEN", snaps[1].State)
}

func TestRegistry_ClockDrivesReset(t *testing.T) {
	clock := &fakeClock{now: t0}
	reg, err := NewRegistry(&Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second}, WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		reg.RecordFailure("catalog")
	}

	clock.Advance(5 * time.Second)
	p := reg.Attempt("catalog")
	assert.False(t, p.Allowed)
	assert.ErrorIs(t, p.Reason, ErrOpenState)

	clock.Advance(6 * time.Second)
	assert.True(t, reg.Attempt("catalog").Allowed)
	assert.Equal(t, StateClosed, reg.Get("catalog").State())
}

func TestRegistry_RemoteErrorIsStateNoop(t *testing.T) {
	reg, err := NewRegistry(nil, WithMeter(metrics.Discard()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		reg.RecordRemoteError("catalog")
	}
	assert.Equal(t, StateClosed, reg.Get("catalog").State())
}

func TestRegistry_EmptyName(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	p := reg.Attempt("")
	assert.False(t, p.Allowed)
	assert.ErrorIs(t, p.Reason, ErrKeyEmpty)
}
