// Package resilience wraps external dependency calls with retry and circuit
// breaking. Transient failures retry on a jittered exponential backoff up to
// an attempt ceiling; repeated consecutive failures open a per-dependency
// breaker that fails fast until a recovery probe succeeds.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/logging"
)

// Defaults for the retry schedule and the breaker.
const (
	DefaultMaxAttempts      = 4
	DefaultInitialInterval  = time.Second
	DefaultMaxInterval      = 8 * time.Second
	DefaultBackoffMultiple  = 2.0
	DefaultBreakerThreshold = 5
	DefaultBreakerRecovery  = 30 * time.Second
	DefaultCallTimeout      = 30 * time.Second
)

// Config tunes retry and breaker behaviour. The zero value yields the
// production defaults.
type Config struct {
	// MaxAttempts bounds total tries per call, the first included. Default 4.
	MaxAttempts int

	// InitialInterval is the first backoff delay; subsequent delays multiply
	// by Multiplier up to MaxInterval, each jittered. Defaults 1s, 2.0, 8s.
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration

	// BreakerThreshold is the consecutive-failure count that opens a
	// dependency's breaker. Default 5.
	BreakerThreshold uint32

	// BreakerRecovery is how long an open breaker waits before admitting a
	// single half-open probe. Default 30s.
	BreakerRecovery time.Duration

	// CallTimeout bounds each individual attempt. Default 30s.
	CallTimeout time.Duration

	// Logger receives retry and breaker diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultBackoffMultiple
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerRecovery <= 0 {
		c.BreakerRecovery = DefaultBreakerRecovery
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.NoOpLogger{}
	}
	return c
}

// Invoker executes dependency calls under the retry and breaker policy. One
// breaker exists per dependency name, created lazily. Safe for concurrent
// use.
type Invoker struct {
	cfg    Config
	logger logging.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewInvoker creates an invoker with the given configuration.
func NewInvoker(cfg Config) *Invoker {
	cfg = cfg.withDefaults()
	return &Invoker{
		cfg:      cfg,
		logger:   cfg.Logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (i *Invoker) breaker(dependency string) *gobreaker.CircuitBreaker {
	i.mu.Lock()
	defer i.mu.Unlock()
	if cb, ok := i.breakers[dependency]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: dependency,
		// Exactly one probe is admitted while half-open.
		MaxRequests: 1,
		Timeout:     i.cfg.BreakerRecovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= i.cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			i.logger.Info("circuit breaker state change",
				"dependency", name, "from", from.String(), "to", to.String())
		},
	})
	i.breakers[dependency] = cb
	return cb
}

// BreakerState reports the named dependency's breaker state ("closed",
// "half-open", "open"). A dependency never called reports "closed".
func (i *Invoker) BreakerState(dependency string) string {
	return i.breaker(dependency).State().String()
}

// Do runs fn under the dependency's breaker with the retry schedule.
// Transient errors retry; fatal errors and an open breaker return
// immediately. The attempt count covers every try made, including the last.
// An open breaker surfaces as core.ErrCircuitOpen.
func (i *Invoker) Do(ctx context.Context, dependency string, fn func(ctx context.Context) (any, error)) (any, int, error) {
	cb := i.breaker(dependency)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = i.cfg.InitialInterval
	expo.Multiplier = i.cfg.Multiplier
	expo.MaxInterval = i.cfg.MaxInterval
	expo.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	var (
		result   any
		attempts int
	)
	op := func() error {
		attempts++
		v, err := cb.Execute(func() (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
			defer cancel()
			return fn(callCtx)
		})
		if err == nil {
			result = v
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Breaker calls do not count as attempts against the dependency.
			attempts--
			return backoff.Permanent(fmt.Errorf("%s: %w", dependency, core.ErrCircuitOpen))
		}
		if core.IsTransient(err) {
			i.logger.Debug("transient failure, will retry",
				"dependency", dependency, "attempt", attempts, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(i.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		i.logger.Warn("dependency call failed",
			"dependency", dependency, "attempts", attempts, "error", err)
		return nil, attempts, err
	}
	return result, attempts, nil
}
