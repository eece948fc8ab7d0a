// Package ratelimit implements per-(provider, model) sliding-window
// admission control for request and token quotas.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the sliding window over which usage is measured.
const DefaultWindow = 60 * time.Second

// QuotaSource resolves the quota for a (provider, model) pair. A pair with
// both limits zero is unmetered.
type QuotaSource interface {
	// QuotaFor returns (requestLimit, tokenLimit) for the pair.
	QuotaFor(provider, model string) (requests, tokens int)
}

// QuotaFunc adapts a function to the QuotaSource interface.
type QuotaFunc func(provider, model string) (int, int)

// QuotaFor implements QuotaSource.
func (f QuotaFunc) QuotaFor(provider, model string) (int, int) {
	return f(provider, model)
}

// entry is one recorded usage event inside the window.
type entry struct {
	at     time.Time
	weight int
}

// Usage is a point-in-time snapshot of window usage for a pair.
type Usage struct {
	// Requests is the live request count in the window.
	Requests int
	// RequestLimit is the configured per-window request limit.
	RequestLimit int
	// Tokens is the live token sum in the window.
	Tokens int
	// TokenLimit is the configured per-window token limit.
	TokenLimit int
}

// Limiter tracks sliding-window usage per (provider, model) pair.
//
// Check followed by Record is not atomic as a pair: concurrent dispatch to
// the same pair can transiently over-admit. Single-process deployments
// accept this; callers needing strict enforcement must hold their own lock
// around the check/record pair.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	quotas   QuotaSource
	requests map[string][]entry
	tokens   map[string][]entry
	now      func() time.Time
}

// New creates a limiter with the default 60s window.
func New(quotas QuotaSource) *Limiter {
	return NewWithWindow(quotas, DefaultWindow)
}

// NewWithWindow creates a limiter with a custom window duration.
func NewWithWindow(quotas QuotaSource, window time.Duration) *Limiter {
	return &Limiter{
		window:   window,
		quotas:   quotas,
		requests: make(map[string][]entry),
		tokens:   make(map[string][]entry),
		now:      time.Now,
	}
}

func key(provider, model string) string {
	return provider + ":" + model
}

// Check reports whether a request with the given estimated token cost may
// proceed. When denied, the returned duration is how long until the oldest
// blocking window entry expires.
func (l *Limiter) Check(provider, model string, estTokens int) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	requestLimit, tokenLimit := l.quotas.QuotaFor(provider, model)
	if requestLimit <= 0 && tokenLimit <= 0 {
		return true, 0
	}

	now := l.now()
	k := key(provider, model)

	if requestLimit > 0 {
		live := l.expire(l.requests, k, now)
		if len(live) >= requestLimit {
			return false, l.retryAfter(live, now)
		}
	}

	if tokenLimit > 0 {
		live := l.expire(l.tokens, k, now)
		sum := 0
		for _, e := range live {
			sum += e.weight
		}
		if sum+estTokens > tokenLimit {
			return false, l.retryAfter(live, now)
		}
	}

	return true, 0
}

// Record appends one request entry and one token entry for the pair.
// Call it after a successful provider invocation.
func (l *Limiter) Record(provider, model string, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(provider, model)
	l.requests[k] = append(l.requests[k], entry{at: now, weight: 1})
	l.tokens[k] = append(l.tokens[k], entry{at: now, weight: tokens})
}

// Snapshot returns current window usage and limits for the pair.
func (l *Limiter) Snapshot(provider, model string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(provider, model)
	requestLimit, tokenLimit := l.quotas.QuotaFor(provider, model)

	live := l.expire(l.requests, k, now)
	u := Usage{Requests: len(live), RequestLimit: requestLimit, TokenLimit: tokenLimit}
	for _, e := range l.expire(l.tokens, k, now) {
		u.Tokens += e.weight
	}
	return u
}

// expire drops entries older than the window for the key and returns the
// remaining live entries. Removal is lazy: it happens on the next check.
func (l *Limiter) expire(hist map[string][]entry, k string, now time.Time) []entry {
	cutoff := now.Add(-l.window)
	entries := hist[k]
	i := 0
	for i < len(entries) && entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		entries = entries[i:]
		hist[k] = entries
	}
	return entries
}

// retryAfter computes the wait until the oldest live entry leaves the window.
func (l *Limiter) retryAfter(live []entry, now time.Time) time.Duration {
	if len(live) == 0 {
		return 0
	}
	wait := live[0].at.Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
