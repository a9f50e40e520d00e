package opengraph

import (
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/lepinkainen/og-monitor/pkg/urlutils"
)

// Extractor turns an HTML document into MetaData
type Extractor struct {
	// Detector flags pages whose tags are likely injected client-side.
	// Nil disables detection.
	Detector JSDetector

	sanitizer *bluemonday.Policy
}

// NewExtractor returns an extractor using DefaultJSDetector
func NewExtractor() *Extractor {
	return &Extractor{
		Detector:  DefaultJSDetector,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

var defaultExtractor = NewExtractor()

// Extract parses htmlContent with the default extractor
func Extract(htmlContent, finalURL string) MetaData {
	return defaultExtractor.Extract(htmlContent, finalURL)
}

// Extract parses htmlContent fetched from finalURL. It never fails: an
// unparseable document yields MetaData with only the URL set.
func (e *Extractor) Extract(htmlContent, finalURL string) MetaData {
	meta := MetaData{URL: finalURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		slog.Warn("Failed to parse HTML", "url", finalURL, "error", err)
		return meta
	}

	meta.Title = e.ogText(doc, "og:title")
	if meta.Title == "" {
		meta.Title = e.cleanText(doc.Find("title").First().Text())
	}

	meta.Description = e.ogText(doc, "og:description")
	if meta.Description == "" {
		meta.Description = e.metaText(doc, "description")
	}

	meta.Image = firstURL(doc, "og:image", "og:image:url")
	if meta.Image != "" {
		meta.Image = resolve(finalURL, meta.Image)
	}

	meta.SiteName = e.ogText(doc, "og:site_name")
	meta.Type = e.ogText(doc, "og:type")
	meta.Locale = e.ogText(doc, "og:locale")
	meta.ImageWidth = dimension(doc, "og:image:width")
	meta.ImageHeight = dimension(doc, "og:image:height")

	meta.TwitterCard = e.ogText(doc, "twitter:card")
	meta.TwitterSite = e.ogText(doc, "twitter:site")
	meta.TwitterCreator = e.ogText(doc, "twitter:creator")
	meta.TwitterTitle = e.ogText(doc, "twitter:title")
	meta.TwitterDescription = e.ogText(doc, "twitter:description")
	meta.TwitterImage = firstURL(doc, "twitter:image", "twitter:image:src")
	if meta.TwitterImage != "" {
		meta.TwitterImage = resolve(finalURL, meta.TwitterImage)
	}

	if e.Detector != nil {
		meta.IsJavaScriptRequired, meta.JSRenderingReason = e.detect(doc, meta)
	}

	slog.Debug("Extracted metadata", "url", finalURL, "title", meta.Title,
		"has_description", meta.Description != "", "has_image", meta.Image != "")

	return meta
}

// detect runs the detector, converting a panic into "not detected"
func (e *Extractor) detect(doc *goquery.Document, meta MetaData) (required bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("JavaScript detector panicked", "url", meta.URL, "panic", r)
			required, reason = false, ""
		}
	}()
	return e.Detector(doc, meta)
}

// tagContents returns the content attribute of every meta tag whose property
// or name equals key, in document order
func tagContents(doc *goquery.Document, key string) []string {
	var values []string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		property, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(property), key) && !strings.EqualFold(strings.TrimSpace(name), key) {
			return
		}
		if content, ok := s.Attr("content"); ok {
			values = append(values, content)
		}
	})
	return values
}

func (e *Extractor) ogText(doc *goquery.Document, key string) string {
	for _, v := range tagContents(doc, key) {
		if cleaned := e.cleanText(v); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

// metaText reads a plain <meta name="..."> tag
func (e *Extractor) metaText(doc *goquery.Document, name string) string {
	var found string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
		content, _ := s.Attr("content")
		found = e.cleanText(content)
		return found == ""
	})
	return found
}

// cleanText strips markup, decodes entities, collapses whitespace and drops NUL bytes
func (e *Extractor) cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\x00", "")
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(e.sanitizer.Sanitize(s))
	}
	return strings.Join(strings.Fields(s), " ")
}

func firstURL(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		for _, v := range tagContents(doc, key) {
			v = strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// resolve makes ref absolute against base, keeping ref unchanged on failure
func resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	resolved, err := urlutils.ResolveURL(base, ref)
	if err != nil {
		slog.Debug("Failed to resolve URL", "base", base, "ref", ref, "error", err)
		return ref
	}
	return resolved
}

// dimension parses a positive integer size tag; anything else is absent
func dimension(doc *goquery.Document, key string) *int {
	for _, v := range tagContents(doc, key) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			continue
		}
		return &n
	}
	return nil
}
