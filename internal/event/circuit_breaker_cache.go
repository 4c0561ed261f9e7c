package event

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"hookgate/internal/config"
	"hookgate/pkg/circuitbreaker"
)

// CircuitBreakerCache shields the processor from a misbehaving Redis. When the
// breaker is open, reads report a miss-shaped error and writes are dropped.
type CircuitBreakerCache struct {
	cache ResultCache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerCache(cache ResultCache, cfg config.CircuitBreakerConfig) *CircuitBreakerCache {
	if !cfg.Enabled {
		return &CircuitBreakerCache{
			cache: cache,
			cb:    nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-result-cache")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (c *CircuitBreakerCache) GetResult(ctx context.Context, provider, providerEventID string) ([]byte, error) {
	if c.cb == nil {
		return c.cache.GetResult(ctx, provider, providerEventID)
	}

	result, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.cache.GetResult(ctx, provider, providerEventID)
	})

	c.cb.RecordRequest(err == nil)

	if err != nil {
		if c.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for redis-result-cache: %w", err)
		}
		return nil, err
	}

	val, ok := result.([]byte)
	if !ok && result != nil {
		return nil, fmt.Errorf("cache returned invalid result type")
	}

	return val, nil
}

func (c *CircuitBreakerCache) SetResult(ctx context.Context, provider, providerEventID string, result []byte, ttl time.Duration) error {
	if c.cb == nil {
		return c.cache.SetResult(ctx, provider, providerEventID, result, ttl)
	}

	_, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.cache.SetResult(ctx, provider, providerEventID, result, ttl)
	})

	c.cb.RecordRequest(err == nil)

	if err != nil {
		if c.cb.IsOpen() {
			return fmt.Errorf("circuit breaker is open for redis-result-cache: %w", err)
		}
		return err
	}

	return nil
}

func (c *CircuitBreakerCache) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}
