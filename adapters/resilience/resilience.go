// Package resilience provides the shared circuit-breaker and rate-limiter
// wrapping every live third-party adapter call.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guard wraps third-party calls with a circuit breaker (so a flapping
// dependency stops being hammered) and a token-bucket rate limiter (so a
// healthy dependency never gets hammered in the first place). The core
// treats both as adapter-layer concerns: a node body never sees a
// breaker-open error differently from any other adapter error, since
// either way it falls back to mock data for that one call.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard builds a Guard named for its adapter (used in breaker
// metrics/logging) with the given sustained rate and burst size.
func NewGuard(name string, ratePerSecond float64, burst int) *Guard {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Guard{
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Do waits for rate-limiter admission, then runs fn through the circuit
// breaker. Returns the breaker/limiter error as-is so callers can
// distinguish "rate limited" / "circuit open" from the wrapped error if
// they care to, but adapter callers in this codebase treat any non-nil
// error identically (fall back to mock data for that call).
func (g *Guard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return g.breaker.Execute(fn)
}
