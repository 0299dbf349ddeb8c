// Package ratelimit guards outbound calls with a token bucket per source key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/logger"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/metrics"
)

// Quota is a number of requests allowed per window.
type Quota struct {
	Requests int
	Window   time.Duration
}

func (q Quota) valid() bool {
	return q.Requests > 0 && q.Window > 0
}

// DefaultQuota applies to keys without an explicit quota.
var DefaultQuota = Quota{Requests: 5, Window: time.Second}

// CRMQuota matches the HubSpot private app burst limit.
var CRMQuota = Quota{Requests: 100, Window: 10 * time.Second}

// Acquirer is what callers need from a limiter.
type Acquirer interface {
	Acquire(ctx context.Context, key string) error
}

// SharedWindow enforces a quota across processes.
type SharedWindow interface {
	Reserve(ctx context.Context, key string, q Quota) (allowed bool, retryAfter time.Duration, err error)
}

type Options struct {
	Default Quota
	Quotas  map[string]Quota
	MaxWait time.Duration
	Shared  SharedWindow
	Logger  logger.Logger
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	quotas  map[string]Quota
	def     Quota
	maxWait time.Duration
	shared  SharedWindow
	log     logger.Logger
}

func New(opts Options) *Limiter {
	def := opts.Default
	if !def.valid() {
		def = DefaultQuota
	}
	quotas := make(map[string]Quota, len(opts.Quotas))
	for k, q := range opts.Quotas {
		if q.valid() {
			quotas[k] = q
		}
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		quotas:  quotas,
		def:     def,
		maxWait: opts.MaxWait,
		shared:  opts.Shared,
		log:     logger.ForComponent(opts.Logger, "ratelimit"),
	}
}

// QuotaFor returns the quota applied to key.
func (l *Limiter) QuotaFor(key string) Quota {
	if q, ok := l.quotas[key]; ok {
		return q
	}
	return l.def
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		q := l.QuotaFor(key)
		b = rate.NewLimiter(rate.Limit(float64(q.Requests)/q.Window.Seconds()), q.Requests)
		l.buckets[key] = b
	}
	return b
}

// Acquire blocks until a token for key is available. It fails with RATE_LIMIT_EXCEEDED once
// the wait budget is spent, or with TIMEOUT when ctx ends first.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	start := time.Now()
	b := l.bucket(key)

	if l.maxWait <= 0 {
		if !b.Allow() {
			return l.reject(ctx, key, start)
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
		defer cancel()

		if err := b.Wait(waitCtx); err != nil {
			return l.reject(ctx, key, start)
		}
		if l.shared != nil {
			if err := l.acquireShared(waitCtx, key); err != nil {
				return l.reject(ctx, key, start)
			}
		}
	}

	metrics.RateLimitWait.WithLabelValues(key).Observe(time.Since(start).Seconds())
	return nil
}

func (l *Limiter) acquireShared(ctx context.Context, key string) error {
	q := l.QuotaFor(key)
	for {
		allowed, retryAfter, err := l.shared.Reserve(ctx, key, q)
		if err != nil {
			l.log.Warn("shared rate limit window unavailable, using local bucket only", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			return nil
		}
		if allowed {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < retryAfter {
			return context.DeadlineExceeded
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Limiter) reject(ctx context.Context, key string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewTimeoutError("rate limit wait for "+key, err)
	}
	metrics.RateLimitRejected.WithLabelValues(key).Inc()
	return apperrors.NewRateLimitExceededError(key, time.Since(start))
}
