package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/og-monitor/internal/config"
	"github.com/lepinkainen/og-monitor/internal/lock"
	"github.com/lepinkainen/og-monitor/internal/notify"
	"github.com/lepinkainen/og-monitor/internal/storage"
	pkgconfig "github.com/lepinkainen/og-monitor/pkg/config"
	"github.com/lepinkainen/og-monitor/pkg/database"
	"github.com/lepinkainen/og-monitor/pkg/filesystem"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/platforms"
	"github.com/lepinkainen/og-monitor/pkg/ratelimit"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// imageCacheTable holds memoized image probe results
const imageCacheTable = "image_probe_cache"

// app bundles the collaborators a command needs
type app struct {
	cfg           *config.Config
	catalog       *platforms.Catalog
	catalogSource pkgconfig.Source
	store         monitor.Store
	orchestrator  *monitor.Orchestrator
	closers       []func() error
}

// newApp wires the pipeline. The datastore, Redis and notifications are only
// set up when withStore is true.
func newApp(ctx context.Context, cfg *config.Config, withStore bool) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.catalog, a.catalogSource = platforms.Load(ctx, &pkgconfig.LoaderConfig{
		RemoteURL:  cfg.Platforms.OverrideURL,
		LocalPath:  cfg.Platforms.OverridePath,
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: 2,
	})

	probe, inspectProbe, err := a.imageProbes(ctx)
	if err != nil {
		return nil, err
	}

	var fetcher monitor.PageFetcher = opengraph.NewFetcher(&opengraph.FetcherConfig{
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	})
	if cfg.Fetch.HostDelay > 0 {
		fetcher = monitor.NewHostLimitedFetcher(fetcher, ratelimit.NewHostLimiter(cfg.Fetch.HostDelay))
	}

	opts := monitor.Options{
		Fetcher:      fetcher,
		Probe:        probe,
		InspectProbe: inspectProbe,
		Validator:    validate.New(a.catalog),
		Destination:  cfg.Notify.Destination,
	}

	if withStore {
		if err := a.wireStore(ctx, &opts); err != nil {
			return nil, err
		}
	}

	a.orchestrator = monitor.NewOrchestrator(opts)
	return a, nil
}

func (a *app) wireStore(ctx context.Context, opts *monitor.Options) error {
	store, err := storage.Open(ctx, a.cfg.StorageConfig())
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	opts.Store = store

	if a.cfg.Redis.Addr != "" {
		client, err := lock.NewRedisClient(ctx, a.cfg.RedisConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts.Locker = lock.NewRedisLocker(client)
		slog.Debug("Using Redis check locks", "addr", a.cfg.Redis.Addr)
	}

	multi, err := notify.DefaultRegistry.Build(a.cfg.NotifyConfig())
	if err != nil {
		return fmt.Errorf("failed to set up notifications: %w", err)
	}
	if multi != nil {
		opts.Notifier = multi
	}
	return nil
}

// imageProbes returns the live probe used by monitor checks and the probe
// for one-off inspections, which goes through the cache when one is configured
func (a *app) imageProbes(ctx context.Context) (live, inspect opengraph.ImageProbe, err error) {
	probe := opengraph.NewHTTPImageProbe(a.cfg.Image.Timeout, nil)
	if a.cfg.Image.CachePath == "" {
		return probe, probe, nil
	}

	cache, err := a.openImageCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	return probe, opengraph.NewCachedImageProbe(probe, cache), nil
}

func (a *app) openImageCache(ctx context.Context) (*database.Cache, error) {
	if a.cfg.Image.CachePath == "" {
		return nil, errors.New("image.cache_path is not configured")
	}
	path, err := filesystem.ExpandHome(a.cfg.Image.CachePath)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open image cache: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	cache, err := database.NewCache(ctx, db, imageCacheTable)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image cache: %w", err)
	}
	return cache, nil
}

// Close releases everything newApp opened, newest first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
