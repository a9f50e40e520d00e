package opengraph

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func intPtr(n int) *int { return &n }

func TestExtractPrecedence(t *testing.T) {
	tests := []struct {
		name            string
		html            string
		wantTitle       string
		wantDescription string
		wantImage       string
	}{
		{
			name: "og tags win over generic tags",
			html: `<html><head>
				<title>Generic</title>
				<meta name="description" content="Generic description">
				<meta property="og:title" content="OG Title">
				<meta property="og:description" content="OG description">
				<meta property="og:image" content="https://x.com/og.png">
				<meta property="og:image:url" content="https://x.com/url.png">
			</head></html>`,
			wantTitle:       "OG Title",
			wantDescription: "OG description",
			wantImage:       "https://x.com/og.png",
		},
		{
			name: "generic fallbacks",
			html: `<html><head>
				<title>Home</title>
				<meta name="description" content="Plain description">
				<meta property="og:image:url" content="https://x.com/url.png">
			</head></html>`,
			wantTitle:       "Home",
			wantDescription: "Plain description",
			wantImage:       "https://x.com/url.png",
		},
		{
			name: "og tags declared with name attribute",
			html: `<html><head>
				<meta name="og:title" content="Named">
				<meta name="og:description" content="Named description">
			</head></html>`,
			wantTitle:       "Named",
			wantDescription: "Named description",
		},
		{
			name: "empty og tag falls through to next match",
			html: `<html><head>
				<meta property="og:title" content="  ">
				<meta property="og:title" content="Second">
			</head></html>`,
			wantTitle: "Second",
		},
		{
			name:      "twitter fields do not fill og fields",
			html:      `<html><head><meta name="twitter:title" content="Tweet"></head></html>`,
			wantTitle: "",
		},
		{
			name:      "no head at all",
			html:      `just text`,
			wantTitle: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Extract(tt.html, "https://x.com/page")
			if meta.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", meta.Title, tt.wantTitle)
			}
			if meta.Description != tt.wantDescription {
				t.Errorf("Description = %q, want %q", meta.Description, tt.wantDescription)
			}
			if meta.Image != tt.wantImage {
				t.Errorf("Image = %q, want %q", meta.Image, tt.wantImage)
			}
			if meta.URL != "https://x.com/page" {
				t.Errorf("URL = %q", meta.URL)
			}
		})
	}
}

func TestExtractResolvesImages(t *testing.T) {
	tests := []struct {
		name      string
		finalURL  string
		image     string
		wantImage string
	}{
		{name: "root relative", finalURL: "https://x.com/blog/post", image: "/img/a.png", wantImage: "https://x.com/img/a.png"},
		{name: "path relative", finalURL: "https://x.com/blog/post", image: "a.png", wantImage: "https://x.com/blog/a.png"},
		{name: "protocol relative", finalURL: "https://x.com/", image: "//cdn.x.com/a.png", wantImage: "https://cdn.x.com/a.png"},
		{name: "absolute untouched", finalURL: "https://x.com/", image: "https://other.com/a.png", wantImage: "https://other.com/a.png"},
		{name: "unparseable kept", finalURL: "https://x.com/", image: "%zz.png", wantImage: "%zz.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<html><head>
				<meta property="og:image" content="` + tt.image + `">
				<meta name="twitter:image" content="` + tt.image + `">
			</head></html>`
			meta := Extract(html, tt.finalURL)
			if meta.Image != tt.wantImage {
				t.Errorf("Image = %q, want %q", meta.Image, tt.wantImage)
			}
			if meta.TwitterImage != tt.wantImage {
				t.Errorf("TwitterImage = %q, want %q", meta.TwitterImage, tt.wantImage)
			}
		})
	}
}

func TestExtractDimensions(t *testing.T) {
	tests := []struct {
		name       string
		width      string
		height     string
		wantWidth  *int
		wantHeight *int
	}{
		{name: "valid", width: "1200", height: "630", wantWidth: intPtr(1200), wantHeight: intPtr(630)},
		{name: "padded", width: " 800 ", height: "418", wantWidth: intPtr(800), wantHeight: intPtr(418)},
		{name: "non numeric", width: "wide", height: "630px", wantHeight: nil},
		{name: "zero and negative", width: "0", height: "-5"},
		{name: "decimal", width: "1200.5", height: "630", wantHeight: intPtr(630)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<html><head>
				<meta property="og:image:width" content="` + tt.width + `">
				<meta property="og:image:height" content="` + tt.height + `">
			</head></html>`
			meta := Extract(html, "https://x.com/")
			assertIntPtr(t, "ImageWidth", meta.ImageWidth, tt.wantWidth)
			assertIntPtr(t, "ImageHeight", meta.ImageHeight, tt.wantHeight)
		})
	}
}

func assertIntPtr(t *testing.T, field string, got, want *int) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s = %v, want %v", field, got, want)
	case *got != *want:
		t.Errorf("%s = %d, want %d", field, *got, *want)
	}
}

func TestExtractAllFields(t *testing.T) {
	html := `<html lang="en"><head>
		<meta property="og:title" content="Title">
		<meta property="og:site_name" content="Site">
		<meta property="og:type" content="article">
		<meta property="og:locale" content="en_US">
		<meta name="twitter:card" content="summary_large_image">
		<meta name="twitter:site" content="@site">
		<meta name="twitter:creator" content="@author">
		<meta property="twitter:title" content="Tweet title">
		<meta name="twitter:description" content="Tweet description">
		<meta name="twitter:image:src" content="/t.png">
	</head><body><p>` + strings.Repeat("word ", 60) + `</p></body></html>`

	meta := Extract(html, "https://x.com/a")

	checks := map[string][2]string{
		"SiteName":           {meta.SiteName, "Site"},
		"Type":               {meta.Type, "article"},
		"Locale":             {meta.Locale, "en_US"},
		"TwitterCard":        {meta.TwitterCard, "summary_large_image"},
		"TwitterSite":        {meta.TwitterSite, "@site"},
		"TwitterCreator":     {meta.TwitterCreator, "@author"},
		"TwitterTitle":       {meta.TwitterTitle, "Tweet title"},
		"TwitterDescription": {meta.TwitterDescription, "Tweet description"},
		"TwitterImage":       {meta.TwitterImage, "https://x.com/t.png"},
	}
	for field, pair := range checks {
		if pair[0] != pair[1] {
			t.Errorf("%s = %q, want %q", field, pair[0], pair[1])
		}
	}
	if meta.IsJavaScriptRequired {
		t.Errorf("IsJavaScriptRequired = true for a static page (%s)", meta.JSRenderingReason)
	}
}

func TestExtractCleansText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "collapses whitespace", content: "  Hello \n\t  world  ", want: "Hello world"},
		{name: "strips markup", content: "&lt;b&gt;Bold&lt;/b&gt; move", want: "Bold move"},
		{name: "decodes entities", content: "Fish &amp; Chips", want: "Fish & Chips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Extract(`<meta property="og:title" content="`+tt.content+`">`, "https://x.com/")
			if meta.Title != tt.want {
				t.Errorf("Title = %q, want %q", meta.Title, tt.want)
			}
		})
	}
}

func TestExtractRecoversFromDetectorPanic(t *testing.T) {
	e := NewExtractor()
	e.Detector = func(*goquery.Document, MetaData) (bool, string) {
		panic("boom")
	}

	meta := e.Extract(`<title>Still works</title>`, "https://x.com/")
	if meta.Title != "Still works" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.IsJavaScriptRequired {
		t.Error("IsJavaScriptRequired should be false after detector panic")
	}
}

func TestExtractWithoutDetector(t *testing.T) {
	e := NewExtractor()
	e.Detector = nil

	meta := e.Extract(`<html><body><div id="root"></div><script src="app.js"></script></body></html>`, "https://x.com/")
	if meta.IsJavaScriptRequired {
		t.Error("IsJavaScriptRequired should stay false with detection disabled")
	}
}
