// Package ratelimit provides a per-provider token-bucket throttle used to
// keep enrichment clients under the rate limits their upstream providers
// impose (DNS/whois, HTTP APIs). Waiters are served in arrival order.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles calls to a fixed steady-state rate with burst capacity.
// It wraps golang.org/x/time/rate, which already gives fractional-token
// accuracy and FIFO reservation ordering; callers get a narrower surface
// matching the shape the enrichment clients expect (Acquire/AcquireN).
type Limiter struct {
	rl *rate.Limiter
}

// Unlimited is a Limiter that never blocks. The offline geo/ASN client
// takes no limiter at all; Unlimited is handed to clients that make no
// network calls, such as the disabled scanner-reputation client.
var Unlimited = New(rate.Inf, 1)

// New builds a Limiter with the given steady-state rate (tokens/sec) and
// burst capacity. A non-positive rate means "no limit".
func New(ratePerSecond rate.Limit, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if ratePerSecond <= 0 {
		ratePerSecond = rate.Inf
	}
	return &Limiter{rl: rate.NewLimiter(ratePerSecond, burst)}
}

// NewPerSecond is a convenience constructor taking a plain float64 rate,
// matching the (rate, burst) constructor shape the teacher's hand-rolled
// limiters used (enrichment.NewTeamCymruClient, middleware.NewRateLimiter).
func NewPerSecond(requestsPerSecond float64, burst int) *Limiter {
	return New(rate.Limit(requestsPerSecond), burst)
}

// Acquire blocks until a single token is available or ctx is done. There is
// no internal timeout: callers impose deadlines via ctx, per the contract.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// AcquireN blocks until n tokens are available or ctx is done. Used by
// batch operations (e.g. bulk whois chunks) that want to charge the limiter
// once for the whole chunk instead of once per IP.
func (l *Limiter) AcquireN(ctx context.Context, n int) error {
	return l.rl.WaitN(ctx, n)
}

// Limit returns the configured steady-state rate.
func (l *Limiter) Limit() rate.Limit { return l.rl.Limit() }

// Burst returns the configured burst capacity.
func (l *Limiter) Burst() int { return l.rl.Burst() }
