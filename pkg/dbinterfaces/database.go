// Package dbinterfaces provides shared database interface definitions.
package dbinterfaces

import (
	"context"
	"io"
)

// Database defines the common interface for database operations
type Database interface {
	io.Closer // Close() error
}

// Stats holds entry counts for a cache-like table
type Stats struct {
	Total   int64 `json:"total"`
	Valid   int64 `json:"valid"`
	Expired int64 `json:"expired"`
}

// StatsProvider defines the interface for stores that report entry statistics
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// CleanupProvider defines the interface for stores that support expiry cleanup
type CleanupProvider interface {
	CleanupExpired(ctx context.Context) (int64, error)
}
