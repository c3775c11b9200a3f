package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/core"
)

func fastInvoker(threshold uint32, recovery time.Duration) *Invoker {
	return NewInvoker(Config{
		InitialInterval:  time.Millisecond,
		MaxInterval:      2 * time.Millisecond,
		BreakerThreshold: threshold,
		BreakerRecovery:  recovery,
	})
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	inv := fastInvoker(5, time.Minute)

	result, attempts, err := inv.Do(context.Background(), "search", func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	inv := fastInvoker(10, time.Minute)

	calls := 0
	result, attempts, err := inv.Do(context.Background(), "search", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, core.Transient("search", errors.New("rate limited"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDo_TransientExhaustsAttemptCeiling(t *testing.T) {
	inv := fastInvoker(100, time.Minute)

	_, attempts, err := inv.Do(context.Background(), "search", func(ctx context.Context) (any, error) {
		return nil, core.Transient("search", errors.New("timeout"))
	})

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, DefaultMaxAttempts, attempts)
}

func TestDo_FatalErrorDoesNotRetry(t *testing.T) {
	inv := fastInvoker(5, time.Minute)

	calls := 0
	_, attempts, err := inv.Do(context.Background(), "generate", func(ctx context.Context) (any, error) {
		calls++
		return nil, core.Fatal("generate", errors.New("invalid api key"))
	})

	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDo_BreakerOpensAtThreshold(t *testing.T) {
	inv := fastInvoker(3, time.Minute)
	ctx := context.Background()
	fail := func(ctx context.Context) (any, error) {
		return nil, core.Fatal("fetch", errors.New("boom"))
	}

	// Three consecutive failures trip the breaker.
	for range 3 {
		_, _, err := inv.Do(ctx, "fetch", fail)
		require.Error(t, err)
	}
	assert.Equal(t, "open", inv.BreakerState("fetch"))

	// Open breaker fails fast without calling the dependency.
	called := false
	_, attempts, err := inv.Do(ctx, "fetch", func(ctx context.Context) (any, error) {
		called = true
		return "ok", nil
	})
	require.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.False(t, called)
	assert.Zero(t, attempts)
}

func TestDo_BreakerIsPerDependency(t *testing.T) {
	inv := fastInvoker(1, time.Minute)
	ctx := context.Background()

	_, _, err := inv.Do(ctx, "fetch", func(ctx context.Context) (any, error) {
		return nil, core.Fatal("fetch", errors.New("boom"))
	})
	require.Error(t, err)
	require.Equal(t, "open", inv.BreakerState("fetch"))

	// Another dependency is unaffected.
	result, _, err := inv.Do(ctx, "search", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestDo_HalfOpenProbeClosesBreakerOnSuccess(t *testing.T) {
	inv := fastInvoker(1, 20*time.Millisecond)
	ctx := context.Background()

	_, _, err := inv.Do(ctx, "fetch", func(ctx context.Context) (any, error) {
		return nil, core.Fatal("fetch", errors.New("boom"))
	})
	require.Error(t, err)
	require.Equal(t, "open", inv.BreakerState("fetch"))

	time.Sleep(40 * time.Millisecond)

	// Recovery window elapsed: a single probe is admitted and closes the
	// breaker on success.
	result, _, err := inv.Do(ctx, "fetch", func(ctx context.Context) (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, "closed", inv.BreakerState("fetch"))
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	inv := NewInvoker(Config{
		InitialInterval:  50 * time.Millisecond,
		BreakerThreshold: 100,
	})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, _, err := inv.Do(ctx, "search", func(ctx context.Context) (any, error) {
			calls++
			return nil, core.Transient("search", errors.New("slow"))
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}
