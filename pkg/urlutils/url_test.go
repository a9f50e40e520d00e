package urlutils

import "testing"

func TestIsHTTPURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://example.com", true},
		{"https://example.com/path?q=1#frag", true},
		{"https://example.com:8080/api", true},
		{"ftp://example.com/file", false},
		{"/relative/path", false},
		{"https://", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHTTPURL(tt.url); got != tt.want {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{name: "absolute unchanged", base: "https://a.com/x/", ref: "https://b.com/i.png", want: "https://b.com/i.png"},
		{name: "root relative", base: "https://a.com/x/y", ref: "/i.png", want: "https://a.com/i.png"},
		{name: "path relative", base: "https://a.com/x/y", ref: "i.png", want: "https://a.com/x/i.png"},
		{name: "protocol relative", base: "https://a.com/", ref: "//cdn.a.com/i.png", want: "https://cdn.a.com/i.png"},
		{name: "parent", base: "https://a.com/x/y/z", ref: "../i.png", want: "https://a.com/x/i.png"},
		{name: "trims space", base: "https://a.com/", ref: "  /i.png ", want: "https://a.com/i.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.ref)
			if err != nil {
				t.Fatalf("ResolveURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ResolveURL("https://a.com/", "http://[::1"); err == nil {
		t.Error("ResolveURL() should fail on an unparsable reference")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.com/post", "https://example.com/post"},
		{"  HTTPS://Example.COM/Post?b=2&a=1#comments ", "https://example.com/Post?b=2&a=1"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"https://example.com:443", "https://example.com"},
		{"https://example.com:8443/x", "https://example.com:8443/x"},
		{"http://[::1]:8080/x", "http://[::1]:8080/x"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	if _, err := Normalize("http://[::1"); err == nil {
		t.Error("Normalize() should fail on an unparsable URL")
	}
}
