package platforms

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lepinkainen/og-monitor/pkg/config"
)

// Load resolves the platform catalog from the configured override sources.
// Missing or malformed overrides fall back to the embedded catalog.
func Load(ctx context.Context, loader *config.LoaderConfig) (*Catalog, config.Source) {
	data, source, err := config.Load(ctx, loader)
	if err != nil {
		if !errors.Is(err, config.ErrNoSource) {
			slog.Warn("Failed to load platform catalog override", "error", err)
		}
		return Default(), config.SourceEmbedded
	}

	c, err := Parse(data)
	if err != nil {
		slog.Warn("Ignoring invalid platform catalog override", "source", source, "error", err)
		return Default(), config.SourceEmbedded
	}

	slog.Info("Loaded platform catalog", "source", source, "platforms", len(c.platforms))
	return c, source
}
