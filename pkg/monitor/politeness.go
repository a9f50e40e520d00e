package monitor

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/ratelimit"
)

// HostLimitedFetcher waits for the host's rate limit slot before each fetch
type HostLimitedFetcher struct {
	fetcher PageFetcher
	limiter *ratelimit.HostLimiter
}

// NewHostLimitedFetcher wraps fetcher with limiter
func NewHostLimitedFetcher(fetcher PageFetcher, limiter *ratelimit.HostLimiter) *HostLimitedFetcher {
	return &HostLimitedFetcher{fetcher: fetcher, limiter: limiter}
}

// Fetch implements PageFetcher
func (f *HostLimitedFetcher) Fetch(ctx context.Context, url string) (*opengraph.Page, error) {
	host := ratelimit.HostKey(url)
	if !f.limiter.CanProceed(host) {
		slog.Debug("Waiting for host rate limit slot", "host", host)
	}
	if err := f.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}
	return f.fetcher.Fetch(ctx, url)
}
