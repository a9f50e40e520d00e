package opengraph

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>Hi</title></head></html>"))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	})
	mux.HandleFunc("/xhtml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xhtml+xml")
		_, _ = w.Write([]byte("<html><head><title>X</title></head></html>"))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("<html><head><title>Zipped</title></head></html>"))
		_ = gz.Close()
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><head><title>Caf\xe9</title></head></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name         string
		path         string
		wantKind     FetchErrorKind
		wantFinal    string
		wantContains string
		wantInError  string
	}{
		{name: "plain html", path: "/page", wantFinal: "/page", wantContains: "<title>Hi</title>"},
		{name: "redirect exposes final URL", path: "/redirect", wantFinal: "/page", wantContains: "<title>Hi</title>"},
		{name: "xhtml accepted", path: "/xhtml", wantFinal: "/xhtml", wantContains: "<title>X</title>"},
		{name: "gzip decoded", path: "/gzip", wantFinal: "/gzip", wantContains: "Zipped"},
		{name: "charset converted", path: "/latin1", wantFinal: "/latin1", wantContains: "Café"},
		{name: "404 rejected", path: "/missing", wantKind: FetchHTTPStatus, wantInError: "404"},
		{name: "json rejected", path: "/json", wantKind: FetchNonHTML, wantInError: "application/json"},
		{name: "redirect loop", path: "/loop", wantKind: FetchNetwork},
	}

	fetcher := NewFetcher(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := fetcher.Fetch(context.Background(), server.URL+tt.path)
			if tt.wantKind != "" {
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("Fetch() error = %v, want *FetchError", err)
				}
				if fe.Kind != tt.wantKind {
					t.Errorf("Fetch() kind = %q, want %q", fe.Kind, tt.wantKind)
				}
				if tt.wantInError != "" && !strings.Contains(err.Error(), tt.wantInError) {
					t.Errorf("Fetch() error %q should contain %q", err, tt.wantInError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if page.FinalURL != server.URL+tt.wantFinal {
				t.Errorf("FinalURL = %q, want %q", page.FinalURL, server.URL+tt.wantFinal)
			}
			if !strings.Contains(page.HTML, tt.wantContains) {
				t.Errorf("HTML = %q, want it to contain %q", page.HTML, tt.wantContains)
			}
		})
	}
}

func TestFetchSendsIdentifyingHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "og-monitor") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if !strings.HasPrefix(r.Header.Get("Accept"), "text/html") {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	if _, err := NewFetcher(nil).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher := NewFetcher(&FetcherConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), server.URL)
	if !IsTimeout(err) {
		t.Fatalf("Fetch() error = %v, want timeout", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error %q should mention timing out", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %s, timeout not enforced", elapsed)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "/relative/path"} {
		_, err := NewFetcher(nil).Fetch(context.Background(), raw)
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Kind != FetchNetwork {
			t.Errorf("Fetch(%q) error = %v, want network FetchError", raw, err)
		}
	}
}

func TestFetchBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>" + strings.Repeat("a", 4096) + "</html>"))
	}))
	defer server.Close()

	page, err := NewFetcher(&FetcherConfig{MaxBodyBytes: 100}).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.HTML) != 100 {
		t.Errorf("len(HTML) = %d, want 100", len(page.HTML))
	}
}
