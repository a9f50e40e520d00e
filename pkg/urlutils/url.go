// Package urlutils resolves and normalizes page and image URLs.
package urlutils

import (
	"fmt"
	"net/url"
	"strings"
)

// IsHTTPURL reports whether s is an absolute http or https URL with a host
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ResolveURL resolves a relative URL against a base URL.
// If the URL is already absolute, it returns it unchanged.
func ResolveURL(baseURL, relativeURL string) (string, error) {
	relativeURL = strings.TrimSpace(relativeURL)
	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", err
	}
	if rel.IsAbs() {
		return relativeURL, nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

// Normalize canonicalizes a page URL so the same page is not monitored
// twice: surrounding space and the fragment are dropped, the scheme and host
// are lowercased and default ports are removed. Path and query are kept as is.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host

	return u.String(), nil
}
