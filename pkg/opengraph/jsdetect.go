package opengraph

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// JSDetector decides whether a page's metadata is probably rendered
// client-side. It receives the parsed document and the metadata extracted so
// far, and returns a human readable reason when it flags the page.
type JSDetector func(doc *goquery.Document, meta MetaData) (bool, string)

// Thresholds used by DefaultJSDetector
const (
	minStaticWords     = 50
	heavyScriptCount   = 5
	heavyScriptMaxWord = 20
)

// spaRoots are mount points used by common client-side frameworks
var spaRoots = []string{"#root", "#app", "#__next", "#__nuxt", "[ng-app]", "[data-reactroot]"}

// DefaultJSDetector flags pages that look like single page application shells
func DefaultJSDetector(doc *goquery.Document, meta MetaData) (bool, string) {
	body := doc.Find("body")
	words := visibleWordCount(body)
	scripts := doc.Find("script").Length()

	for _, selector := range spaRoots {
		root := body.Find(selector).First()
		if root.Length() == 0 {
			continue
		}
		if scripts > 0 && strings.TrimSpace(root.Text()) == "" && root.Children().Length() == 0 {
			return true, "Page contains an empty " + selector + " application root; content is likely rendered by JavaScript"
		}
	}

	hasOGText := len(tagContents(doc, "og:title")) > 0 || len(tagContents(doc, "og:description")) > 0
	if !hasOGText && words < minStaticWords && scripts > 0 {
		return true, "No Open Graph title or description and very little static text; tags may be added by JavaScript"
	}

	if scripts >= heavyScriptCount && words < heavyScriptMaxWord {
		return true, "Page is mostly scripts with almost no static content"
	}

	return false, ""
}

// visibleWordCount counts words in s outside of script-like elements
func visibleWordCount(s *goquery.Selection) int {
	if s.Length() == 0 {
		return 0
	}
	clone := s.Clone()
	clone.Find("script, style, noscript, template").Remove()
	return len(strings.Fields(clone.Text()))
}
