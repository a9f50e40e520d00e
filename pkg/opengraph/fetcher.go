package opengraph

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Fetch defaults
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultMaxBodyBytes = 2 << 20
	DefaultUserAgent    = "Mozilla/5.0 (compatible; og-monitor/1.0; +https://github.com/lepinkainen/og-monitor)"
)

// FetchErrorKind classifies page fetch failures
type FetchErrorKind string

// Fetch failure kinds
const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchNonHTML    FetchErrorKind = "non_html"
	FetchNetwork    FetchErrorKind = "network"
)

// FetchError describes why a page could not be retrieved
type FetchError struct {
	Kind        FetchErrorKind
	URL         string
	StatusCode  int
	ContentType string
	Timeout     time.Duration
	Err         error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchTimeout:
		return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
	case FetchHTTPStatus:
		return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	case FetchNonHTML:
		if e.ContentType == "" {
			return "not an HTML page: missing content type"
		}
		return fmt.Sprintf("not an HTML page: %s", e.ContentType)
	default:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a fetch timeout
func IsTimeout(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTimeout
}

// FetcherConfig controls page retrieval
type FetcherConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string
	// Transport overrides the HTTP transport, mainly for tests
	Transport http.RoundTripper
}

// DefaultFetcherConfig returns the standard fetch limits
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		Timeout:      DefaultFetchTimeout,
		MaxRedirects: DefaultMaxRedirects,
		MaxBodyBytes: DefaultMaxBodyBytes,
		UserAgent:    DefaultUserAgent,
	}
}

// Fetcher retrieves HTML documents. A single Fetch is one attempt; retry
// policy belongs to the caller.
type Fetcher struct {
	client *http.Client
	config FetcherConfig
}

// NewFetcher creates a fetcher, filling unset limits with defaults
func NewFetcher(config *FetcherConfig) *Fetcher {
	cfg := *DefaultFetcherConfig()
	if config != nil {
		if config.Timeout > 0 {
			cfg.Timeout = config.Timeout
		}
		if config.MaxRedirects > 0 {
			cfg.MaxRedirects = config.MaxRedirects
		}
		if config.MaxBodyBytes > 0 {
			cfg.MaxBodyBytes = config.MaxBodyBytes
		}
		if config.UserAgent != "" {
			cfg.UserAgent = config.UserAgent
		}
		cfg.Transport = config.Transport
	}

	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Timeout returns the per-fetch time budget
func (f *Fetcher) Timeout() time.Duration {
	return f.config.Timeout
}

// Fetch retrieves targetURL within the configured timeout. All failures are
// returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	parsed, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, &FetchError{Kind: FetchNetwork, URL: targetURL, Err: fmt.Errorf("invalid URL %q", targetURL)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	page, err := f.fetch(ctx, parsed.String())
	if err != nil {
		return nil, f.classify(ctx, targetURL, err)
	}
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")

	slog.Debug("Fetching page", "url", targetURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: FetchHTTPStatus, URL: finalURL, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	if !isHTMLContentType(contentType) {
		return nil, &FetchError{Kind: FetchNonHTML, URL: finalURL, ContentType: contentType}
	}

	htmlContent, err := convertToUTF8(body, contentType)
	if err != nil {
		return nil, err
	}

	slog.Debug("Fetched page", "url", targetURL, "final_url", finalURL, "bytes", len(body))

	return &Page{
		HTML:        htmlContent,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
	}, nil
}

// classify maps transport errors onto fetch error kinds
func (f *Fetcher) classify(ctx context.Context, targetURL string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: FetchTimeout, URL: targetURL, Timeout: f.config.Timeout, Err: err}
	}

	return &FetchError{Kind: FetchNetwork, URL: targetURL, Err: err}
}

func isHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// convertToUTF8 converts response body to UTF-8 string with proper encoding detection
func convertToUTF8(body []byte, contentType string) (string, error) {
	utf8Reader, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		slog.Warn("Failed to detect charset, assuming UTF-8", "error", err)
		return string(body), nil
	}

	utf8Bytes, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", fmt.Errorf("failed to convert to UTF-8: %w", err)
	}
	return string(utf8Bytes), nil
}
