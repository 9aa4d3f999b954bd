// Package ratelimit provides per-host rate limiting using a token bucket.
// All fetch calls against one external host share a single bucket, so
// concurrent crawls never collectively exceed the configured rate.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Bucket is a token bucket that refills at a steady rate. Unlike an
// admission-control limiter, Acquire blocks the caller until a token is
// available; the bucket is the point of backpressure for crawling.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewBucket creates a bucket allowing perMinute requests per minute with a
// burst capacity of the same size.
func NewBucket(perMinute int) *Bucket {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Bucket{
		capacity:   float64(perMinute),
		refillRate: float64(perMinute) / 60.0,
		tokens:     float64(perMinute),
		lastRefill: time.Now(),
	}
}

// Acquire consumes one token, blocking until one is available or ctx is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		wait, ok := b.tryTake()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryTake refills the bucket and takes a token if one is available.
// When empty it returns the time until the next token instead.
func (b *Bucket) tryTake() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	b.tokens = min(b.capacity, b.tokens+elapsed.Seconds()*b.refillRate)
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return 0, true
	}

	needed := 1.0 - b.tokens
	wait := time.Duration(needed / b.refillRate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, false
}

// PerHost hands out one shared Bucket per destination host. It is safe for
// concurrent use by all adapters in the process.
type PerHost struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*Bucket
}

// NewPerHost creates a registry whose buckets allow perMinute requests per
// minute each.
func NewPerHost(perMinute int) *PerHost {
	return &PerHost{
		perMinute: perMinute,
		buckets:   make(map[string]*Bucket),
	}
}

// ForHost returns the bucket for host, creating it on first use. Host
// comparison is case-insensitive.
func (p *PerHost) ForHost(host string) *Bucket {
	key := strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.buckets[key]
	if !ok {
		bucket = NewBucket(p.perMinute)
		p.buckets[key] = bucket
	}
	return bucket
}

// Acquire is a convenience that blocks on the bucket for host.
func (p *PerHost) Acquire(ctx context.Context, host string) error {
	return p.ForHost(host).Acquire(ctx)
}
