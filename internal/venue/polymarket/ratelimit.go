// ratelimit.go implements token-bucket rate limiting for the venue's public
// data API. Limits are measured in requests per 10-second windows; the bucket
// refills continuously rather than in 10s bursts to avoid hitting hard edges.
//
// Two buckets are maintained:
//   - Markets: 50 burst / 5 per sec for market discovery
//   - Prices:  150 burst / 15 per sec for price/book reads
package polymarket

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a token-bucket rate limiter with continuous refill. Callers
// block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by API endpoint category.
type RateLimiter struct {
	Markets *TokenBucket // GET /markets, discovery
	Prices  *TokenBucket // GET /prices, price reads
}

// NewRateLimiter creates rate limiters tuned to the venue's published limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Markets: NewTokenBucket(50, 5),   // 50 per 10s window
		Prices:  NewTokenBucket(150, 15), // 150 per 10s window
	}
}
