// Package ratelimit spaces out requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// Limiter keeps one token bucket per host. Callers Wait before a fetch and call Done
// after it, so the next fetch against the same server starts at least Interval after
// the previous one finished.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

// Config holds politeness configuration.
type Config struct {
	// Interval is the minimum spacing between requests to one host; zero disables waiting.
	Interval time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

// Wait blocks until the host of rawURL may be contacted again, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.limit, 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("politeness wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePolitenessDelay(host, waited)
	}
	return nil
}

// Done restarts the host's interval at the current time. A fresh bucket has its single
// token spent immediately, so the next Wait blocks for a full Interval.
func (l *Limiter) Done(rawURL string) {
	if l.limit == rate.Inf {
		return
	}
	fresh := rate.NewLimiter(l.limit, 1)
	fresh.Allow()
	host := hostOf(rawURL)
	l.mu.Lock()
	l.limiters[host] = fresh
	l.mu.Unlock()
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}
