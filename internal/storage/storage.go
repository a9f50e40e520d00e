// Package storage selects the monitor.Store implementation at startup.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/og-monitor/internal/storage/memory"
	"github.com/lepinkainen/og-monitor/internal/storage/postgres"
	"github.com/lepinkainen/og-monitor/internal/storage/sqlite"
	"github.com/lepinkainen/og-monitor/pkg/filesystem"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Sentinels shared by every driver
var (
	ErrNotFound    = monitor.ErrNotFound
	ErrDuplicate   = monitor.ErrDuplicate
	ErrUnavailable = monitor.ErrUnavailable
)

// DefaultDatabaseFile is the SQLite file name used when no path is configured
const DefaultDatabaseFile = "monitors.db"

// Config selects and configures a driver
type Config struct {
	Driver string
	// Path is the SQLite database file
	Path string
	// DSN is the PostgreSQL connection string
	DSN string
}

// Open returns the store for cfg.Driver. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (monitor.Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		slog.Warn("Using in-memory storage; monitors are lost on exit")
		return memory.New(), nil

	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			var err error
			if path, err = filesystem.DefaultDataPath(DefaultDatabaseFile); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		}
		path, err := filesystem.ExpandHome(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		slog.Debug("Opening SQLite storage", "path", path)
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil

	case DriverPostgres:
		slog.Debug("Opening PostgreSQL storage")
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", ErrUnavailable, cfg.Driver)
	}
}
