package opengraph

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestDefaultJSDetector(t *testing.T) {
	prose := strings.Repeat("lorem ipsum ", 40)

	tests := []struct {
		name string
		html string
		want bool
	}{
		{
			name: "react shell",
			html: `<html><head><title>App</title></head><body><div id="root"></div><script src="/main.js"></script></body></html>`,
			want: true,
		},
		{
			name: "next shell",
			html: `<html><body><div id="__next"></div><script src="/_next/app.js"></script></body></html>`,
			want: true,
		},
		{
			name: "angular shell",
			html: `<html><body ng-app="app"><div ng-app="inner"></div><script src="/a.js"></script></body></html>`,
			want: true,
		},
		{
			name: "server rendered react root",
			html: `<html><head><meta property="og:title" content="T"></head><body><div id="root"><p>` + prose + `</p></div><script src="/main.js"></script></body></html>`,
			want: false,
		},
		{
			name: "no og text and thin body with scripts",
			html: `<html><body><p>Loading</p><script>boot()</script></body></html>`,
			want: true,
		},
		{
			name: "no og text but no scripts",
			html: `<html><head><title>Home</title></head><body><p>Welcome</p></body></html>`,
			want: false,
		},
		{
			name: "script heavy page",
			html: `<html><head><meta property="og:title" content="T"></head><body><p>Hi</p>` +
				strings.Repeat(`<script src="/chunk.js"></script>`, 6) + `</body></html>`,
			want: true,
		},
		{
			name: "script text does not count as content",
			html: `<html><body><script>` + prose + `</script><script>x()</script></body></html>`,
			want: true,
		},
		{
			name: "static article",
			html: `<html><head><meta property="og:description" content="D"></head><body><article>` + prose + `</article><script src="/a.js"></script></body></html>`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("failed to parse: %v", err)
			}
			got, reason := DefaultJSDetector(doc, MetaData{})
			if got != tt.want {
				t.Errorf("DefaultJSDetector() = %v (%q), want %v", got, reason, tt.want)
			}
			if got && reason == "" {
				t.Error("flagged pages need a reason")
			}
		})
	}
}

func TestExtractFlagsSPAShell(t *testing.T) {
	meta := Extract(`<html><body><div id="app"></div><script src="/app.js"></script></body></html>`, "https://x.com/")
	if !meta.IsJavaScriptRequired {
		t.Fatal("IsJavaScriptRequired = false, want true")
	}
	if !strings.Contains(meta.JSRenderingReason, "#app") {
		t.Errorf("JSRenderingReason = %q, want it to name the root", meta.JSRenderingReason)
	}
}
