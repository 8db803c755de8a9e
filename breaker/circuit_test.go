package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/xerrors"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestBreaker(t *testing.T, cfg *Config) *CircuitBreaker {
	t.Helper()
	b, err := NewCircuitBreaker("payment", cfg)
	require.NoError(t, err)
	return b
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, nil)

	for i := 0; i < 2; i++ {
		require.True(t, b.Attempt(t0).Allowed)
		b.RecordFailure(t0)
		assert.Equal(t, StateClosed, b.State())
	}

	require.True(t, b.Attempt(t0).Allowed)
	b.RecordFailure(t0)
	assert.Equal(t, StateOpen, b.State())

	snap := b.Snapshot()
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, t0, snap.LastFailure)
}

func TestCircuitBreaker_FullResetAfterTimeout(t *testing.T) {
	b := newTestBreaker(t, &Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second})
	for i := 0; i < 3; i++ {
		b.RecordFailure(t0)
	}
	require.Equal(t, StateOpen, b.State())

	p := b.Attempt(t0.Add(5 * time.Second))
	assert.False(t, p.Allowed)
	assert.ErrorIs(t, p.Reason, ErrOpenState)
	assert.Equal(t, xerrors.KindBreakerOpen, xerrors.KindOf(p.Reason))

	// 恰好等于超时仍然拒绝
	assert.False(t, b.Attempt(t0.Add(10*time.Second)).Allowed)

	p = b.Attempt(t0.Add(11 * time.Second))
	assert.True(t, p.Allowed)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(t, nil)

	b.RecordFailure(t0)
	b.RecordFailure(t0)
	b.RecordSuccess(t0)
	b.RecordFailure(t0)
	b.RecordFailure(t0)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Snapshot().FailureCount)
}

func TestCircuitBreaker_RemoteErrorsNeverTrip(t *testing.T) {
	b := newTestBreaker(t, nil)
	for i := 0; i < 10; i++ {
		require.True(t, b.Attempt(t0).Allowed)
		b.RecordRemoteError(t0)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestCircuitBreaker_LateSuccessWhileOpen(t *testing.T) {
	b := newTestBreaker(t, nil)
	for i := 0; i < 3; i++ {
		b.RecordFailure(t0)
	}
	b.RecordSuccess(t0.Add(time.Second))

	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, b.Snapshot().FailureCount)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cfg := &Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second, HalfOpenProbe: true}

	t.Run("probe success closes", func(t *testing.T) {
		b := newTestBreaker(t, cfg)
		for i := 0; i < 3; i++ {
			b.RecordFailure(t0)
		}

		now := t0.Add(11 * time.Second)
		require.True(t, b.Attempt(now).Allowed)
		assert.Equal(t, StateHalfOpen, b.State())
		assert.False(t, b.Attempt(now).Allowed, "only one probe")

		b.RecordSuccess(now)
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Attempt(now).Allowed)
	})

	t.Run("probe failure reopens and restarts timer", func(t *testing.T) {
		b := newTestBreaker(t, cfg)
		for i := 0; i < 3; i++ {
			b.RecordFailure(t0)
		}

		probeAt := t0.Add(11 * time.Second)
		require.True(t, b.Attempt(probeAt).Allowed)
		b.RecordFailure(probeAt)

		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.Attempt(probeAt.Add(5*time.Second)).Allowed)
		assert.True(t, b.Attempt(probeAt.Add(11*time.Second)).Allowed)
	})

	t.Run("remote error releases probe slot", func(t *testing.T) {
		b := newTestBreaker(t, cfg)
		for i := 0; i < 3; i++ {
			b.RecordFailure(t0)
		}

		now := t0.Add(11 * time.Second)
		require.True(t, b.Attempt(now).Allowed)
		b.RecordRemoteError(now)

		assert.Equal(t, StateHalfOpen, b.State())
		assert.True(t, b.Attempt(now).Allowed)
	})
}

func TestCircuitBreaker_InvalidConfig(t *testing.T) {
	_, err := NewCircuitBreaker("x", &Config{FailureThreshold: -1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	b := newTestBreaker(t, &Config{FailureThreshold: 50, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Attempt(t0).Allowed {
				b.RecordFailure(t0)
			}
		}()
	}
	wg.Wait()

	snap := b.Snapshot()
	assert.Equal(t, "OPEN", snap.State)
	assert.GreaterOrEqual(t, snap.FailureCount, 50)
}
