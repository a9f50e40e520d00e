// Package ratelimit spaces out requests to the same host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HostLimiter enforces a minimum delay between requests that share a key,
// usually the target host. Different keys never wait for each other.
type HostLimiter struct {
	mu       sync.Mutex
	next     map[string]time.Time
	minDelay time.Duration
	now      func() time.Time
}

// NewHostLimiter creates a limiter. A zero or negative delay disables limiting.
func NewHostLimiter(minDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
		now:      time.Now,
	}
}

// Wait blocks until a request for key may proceed or ctx ends. Slots are
// reserved on entry, so concurrent callers for one key are served in turn.
func (l *HostLimiter) Wait(ctx context.Context, key string) error {
	if l == nil || l.minDelay <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.minDelay)
	l.prune(now)
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CanProceed reports whether a request for key would not wait
func (l *HostLimiter) CanProceed(key string) bool {
	if l == nil || l.minDelay <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.next[key].After(l.now())
}

// prune drops hosts whose slot has passed. Caller holds mu.
func (l *HostLimiter) prune(now time.Time) {
	for key, slot := range l.next {
		if !slot.After(now) {
			delete(l.next, key)
		}
	}
}

// HostKey returns the lowercased host of rawURL, or rawURL itself when it
// does not parse
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
