package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/dbinterfaces"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Cache provides a key/value TTL cache on top of the database
type Cache struct {
	db        *Database
	tableName string
	now       func() time.Time
}

var (
	_ dbinterfaces.StatsProvider   = (*Cache)(nil)
	_ dbinterfaces.CleanupProvider = (*Cache)(nil)
)

// NewCache creates the cache table if needed and returns the cache
func NewCache(ctx context.Context, db *Database, tableName string) (*Cache, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid cache table name %q", tableName)
	}

	c := &Cache{db: db, tableName: tableName, now: time.Now}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_expires ON %[1]s(expires_at);
	`, tableName)

	if err := db.ExecuteSchema(ctx, schema); err != nil {
		return nil, err
	}
	return c, nil
}

// Get retrieves a live value from the cache
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ? AND expires_at > ?`, c.tableName)

	var value string
	err := c.db.DB().QueryRowContext(ctx, query, key, c.now().Unix()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache value: %w", err)
	}
	return value, true, nil
}

// Set stores a value in the cache
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := c.now()
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			expires_at = excluded.expires_at, updated_at = excluded.updated_at
	`, c.tableName)

	if _, err := c.db.DB().ExecContext(ctx, query, key, value, now.Add(ttl).Unix(), now.Unix()); err != nil {
		return fmt.Errorf("failed to set cache value: %w", err)
	}
	return nil
}

// Delete removes a value from the cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, c.tableName)
	if _, err := c.db.DB().ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete cache value: %w", err)
	}
	return nil
}

// CleanupExpired removes expired entries and reports how many were dropped
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, c.tableName)

	result, err := c.db.DB().ExecContext(ctx, query, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired entries: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		slog.Debug("Cleaned up expired cache entries", "table", c.tableName, "count", removed)
	}
	return removed, nil
}

// Stats returns entry counts for the cache table
func (c *Cache) Stats(ctx context.Context) (dbinterfaces.Stats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0)
		FROM %s
	`, c.tableName)

	var stats dbinterfaces.Stats
	if err := c.db.DB().QueryRowContext(ctx, query, c.now().Unix()).Scan(&stats.Total, &stats.Valid); err != nil {
		return stats, fmt.Errorf("failed to get cache stats: %w", err)
	}
	stats.Expired = stats.Total - stats.Valid
	return stats, nil
}
