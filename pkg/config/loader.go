// Package config loads optional configuration documents from a remote URL or a
// local file, leaving the embedded defaults to the caller.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	httputil "github.com/lepinkainen/og-monitor/pkg/http"
)

// ErrNoSource is returned when neither a remote URL nor a local path produced data
var ErrNoSource = errors.New("no configuration source available")

// Source identifies where a configuration document came from
type Source string

// Configuration sources in lookup order
const (
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceEmbedded Source = "embedded"
)

// LoaderConfig represents configuration loading options
type LoaderConfig struct {
	RemoteURL  string
	LocalPath  string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultLoaderConfig returns default loader configuration
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// Load returns the first document available from the remote URL, then the
// local path. Failures are logged and the next source is tried. ErrNoSource
// means the caller should use its embedded defaults.
func Load(ctx context.Context, config *LoaderConfig) ([]byte, Source, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}

	if config.RemoteURL != "" {
		data, err := loadFromURL(ctx, config)
		if err == nil {
			return data, SourceRemote, nil
		}
		slog.Warn("Failed to load remote configuration", "url", config.RemoteURL, "error", err)
	}

	if config.LocalPath != "" {
		data, err := os.ReadFile(config.LocalPath)
		if err == nil {
			return data, SourceLocal, nil
		}
		slog.Warn("Failed to load local configuration", "path", config.LocalPath, "error", err)
	}

	return nil, SourceEmbedded, ErrNoSource
}

// loadFromURL loads configuration from a remote URL using shared HTTP utilities
func loadFromURL(ctx context.Context, config *LoaderConfig) ([]byte, error) {
	httpConfig := httputil.DefaultConfig()
	httpConfig.Timeout = config.Timeout
	httpConfig.MaxRetries = config.MaxRetries

	client := httputil.NewClient(httpConfig)
	resp, err := client.GetWithContext(ctx, config.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config from URL: %w", err)
	}

	if err := httputil.EnsureStatusOK(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP error fetching config: %w", err)
	}

	data, err := httputil.ReadResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read config body: %w", err)
	}
	return data, nil
}
