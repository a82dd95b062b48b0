// Package ratelimit spaces out requests to the same domain with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/site-spider/internal/frontier"
	"github.com/JakeFAU/site-spider/internal/metrics"
)

// Config holds the per-domain bucket shape.
type Config struct {
	// DomainQPS is the sustained rate per domain. Zero or less disables limiting.
	DomainQPS float64
	Burst     int
}

// Limiter keeps one token bucket per domain.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	metrics  *metrics.Metrics
}

// New creates a Limiter. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Limiter {
	limit := rate.Limit(cfg.DomainQPS)
	if cfg.DomainQPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		metrics:  m,
	}
}

// Wait blocks until the domain of rawURL has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := frontier.Domain(rawURL)
	if domain == "" {
		domain = "unknown"
	}
	start := time.Now()
	if err := l.bucket(domain).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) bucket(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[domain]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.limiters[domain] = b
	}
	return b
}
