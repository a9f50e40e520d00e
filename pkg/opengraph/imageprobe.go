package opengraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/database"
)

// DefaultImageTimeout bounds a single image probe, independent of page fetches
const DefaultImageTimeout = 5 * time.Second

// Image probe cache lifetimes
const (
	validImageTTL   = time.Hour
	invalidImageTTL = 10 * time.Minute
)

// ImageProbe checks whether an image URL is reachable and serves an image
type ImageProbe interface {
	Check(ctx context.Context, imageURL string) ImageStatus
}

// HTTPImageProbe probes images with HEAD, falling back to a ranged GET for
// servers that reject HEAD or omit the content type
type HTTPImageProbe struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewHTTPImageProbe creates a probe. A zero timeout uses DefaultImageTimeout.
func NewHTTPImageProbe(timeout time.Duration, transport http.RoundTripper) *HTTPImageProbe {
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	return &HTTPImageProbe{
		client:    &http.Client{Transport: transport},
		timeout:   timeout,
		userAgent: DefaultUserAgent,
	}
}

// Check probes imageURL within the probe's own timeout
func (p *HTTPImageProbe) Check(ctx context.Context, imageURL string) ImageStatus {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return InvalidImage(ImageError, fmt.Sprintf("invalid image URL %q", imageURL))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, retry := p.probe(ctx, http.MethodHead, imageURL)
	if retry {
		status, _ = p.probe(ctx, http.MethodGet, imageURL)
	}

	if !status.Valid {
		slog.Debug("Image probe failed", "url", imageURL, "kind", status.Error, "message", status.Message)
	}
	return status
}

// probe performs one request. retry is true when a GET may succeed where HEAD did not.
func (p *HTTPImageProbe) probe(ctx context.Context, method, imageURL string) (status ImageStatus, retry bool) {
	req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
	if err != nil {
		return InvalidImage(ImageError, err.Error()), false
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-511")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyImageError(ctx, err), false
	}
	defer resp.Body.Close()

	isHead := method == http.MethodHead
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return InvalidImage(ImageNotFound, fmt.Sprintf("image returned HTTP %d", resp.StatusCode)), false
	case isHead && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented || resp.StatusCode == http.StatusForbidden):
		return InvalidImage(ImageError, fmt.Sprintf("image returned HTTP %d", resp.StatusCode)), true
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return InvalidImage(ImageError, fmt.Sprintf("image returned HTTP %d", resp.StatusCode)), false
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		if isHead {
			return InvalidImage(ImageNotImage, "image response has no content type"), true
		}
		head, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		contentType = http.DetectContentType(head)
	}

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return InvalidImage(ImageNotImage, fmt.Sprintf("expected an image but got %s", contentType)), false
	}
	return ValidImage(contentType), false
}

func classifyImageError(ctx context.Context, err error) ImageStatus {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return InvalidImage(ImageTimeout, "image request timed out")
	}
	return InvalidImage(ImageError, err.Error())
}

// CachedImageProbe memoizes another probe's results in a database cache
type CachedImageProbe struct {
	probe ImageProbe
	cache *database.Cache
}

// NewCachedImageProbe wraps probe with cache
func NewCachedImageProbe(probe ImageProbe, cache *database.Cache) *CachedImageProbe {
	return &CachedImageProbe{probe: probe, cache: cache}
}

// Check returns a cached status when available, otherwise probes and stores
// the result. Cache failures degrade to an uncached probe.
func (c *CachedImageProbe) Check(ctx context.Context, imageURL string) ImageStatus {
	if raw, ok, err := c.cache.Get(ctx, imageURL); err != nil {
		slog.Warn("Error reading image cache", "url", imageURL, "error", err)
	} else if ok {
		var status ImageStatus
		if err := json.Unmarshal([]byte(raw), &status); err == nil {
			slog.Debug("Found cached image status", "url", imageURL, "valid", status.Valid)
			return status
		}
	}

	status := c.probe.Check(ctx, imageURL)

	ttl := validImageTTL
	if !status.Valid {
		ttl = invalidImageTTL
	}
	if raw, err := json.Marshal(status); err == nil {
		if err := c.cache.Set(ctx, imageURL, string(raw), ttl); err != nil {
			slog.Warn("Failed to cache image status", "url", imageURL, "error", err)
		}
	}
	return status
}

// ProbeImages returns a copy of meta with image statuses filled in. The
// Twitter image is probed only when it differs from the main image.
func ProbeImages(ctx context.Context, probe ImageProbe, meta MetaData) MetaData {
	if probe == nil {
		return meta
	}
	if meta.Image != "" {
		status := probe.Check(ctx, meta.Image)
		meta.ImageStatus = &status
	}
	switch {
	case meta.TwitterImage == "":
	case meta.TwitterImage == meta.Image:
		meta.TwitterImageStatus = meta.ImageStatus
	default:
		status := probe.Check(ctx, meta.TwitterImage)
		meta.TwitterImageStatus = &status
	}
	return meta
}
