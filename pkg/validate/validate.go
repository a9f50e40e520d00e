// Package validate scores extracted metadata against the platform catalog.
//
// Validate is pure: it performs no I/O and returns issues in a fixed order.
// Global issues come first, followed by per-platform issues in catalog order.
package validate

import (
	"fmt"
	"math"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/platforms"
)

// Severity of an issue
type Severity string

// Issue severities, from most to least severe
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Fields an issue can refer to
const (
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldImage        = "image"
	FieldTwitterImage = "twitterImage"
	FieldTwitterCard  = "twitterCard"
	FieldJavaScript   = "javascript"
	FieldURL          = "url"
)

// Issue is a single problem found in a page's metadata. An empty Platform
// means the issue applies everywhere.
type Issue struct {
	Type           Severity `json:"type"`
	Message        string   `json:"message"`
	Field          string   `json:"field"`
	Platform       string   `json:"platform,omitempty"`
	Suggestion     string   `json:"suggestion,omitempty"`
	TruncatedValue string   `json:"truncatedValue,omitempty"`
}

type imageMessage struct {
	message    string
	suggestion string
}

// imageErrorMessages maps probe failures onto user facing text
var imageErrorMessages = map[opengraph.ImageErrorKind]imageMessage{
	opengraph.ImageNotFound: {
		message:    "Image not found (404)",
		suggestion: "Check that og:image points to an existing, publicly accessible file",
	},
	opengraph.ImageNotImage: {
		message:    "Image URL does not return an image",
		suggestion: "Point og:image directly at a JPG, PNG, GIF or WebP file, not an HTML page",
	},
	opengraph.ImageTimeout: {
		message:    "Image took too long to load",
		suggestion: "Serve the image from a faster host or CDN; platforms give up on slow images",
	},
	opengraph.ImageError: {
		message:    "Image is not accessible",
		suggestion: "Make sure the image URL is absolute and reachable without authentication",
	},
}

// Validator checks metadata against a fixed catalog
type Validator struct {
	catalog *platforms.Catalog
}

// New returns a validator for catalog. A nil catalog uses platforms.Default().
func New(catalog *platforms.Catalog) *Validator {
	if catalog == nil {
		catalog = platforms.Default()
	}
	return &Validator{catalog: catalog}
}

// Catalog returns the platforms the validator checks against
func (v *Validator) Catalog() *platforms.Catalog {
	return v.catalog
}

// Validate checks meta against the validator's catalog
func (v *Validator) Validate(meta opengraph.MetaData) []Issue {
	return Validate(meta, v.catalog)
}

// Validate returns the issues found in meta. The result is never nil.
func Validate(meta opengraph.MetaData, catalog *platforms.Catalog) []Issue {
	issues := make([]Issue, 0)

	if meta.IsJavaScriptRequired {
		msg := "Meta tags may be added by JavaScript and invisible to social crawlers"
		if meta.JSRenderingReason != "" {
			msg += ": " + meta.JSRenderingReason
		}
		issues = append(issues, Issue{
			Type:       SeverityWarning,
			Message:    msg,
			Field:      FieldJavaScript,
			Suggestion: "Render Open Graph tags in the initial HTML with server-side rendering or prerendering",
		})
	}

	if meta.Title == "" {
		issues = append(issues, Issue{
			Type:       SeverityError,
			Message:    "Missing title",
			Field:      FieldTitle,
			Suggestion: `Add <meta property="og:title" content="..."> to the page head`,
		})
	}

	if meta.Description == "" {
		issues = append(issues, Issue{
			Type:       SeverityWarning,
			Message:    "Missing description",
			Field:      FieldDescription,
			Suggestion: `Add <meta property="og:description" content="..."> to the page head`,
		})
	}

	switch {
	case meta.Image == "":
		issues = append(issues, Issue{
			Type:       SeverityError,
			Message:    "Missing image",
			Field:      FieldImage,
			Suggestion: `Add <meta property="og:image" content="https://..."> with a 1200x630 image`,
		})
	case meta.ImageStatus != nil && !meta.ImageStatus.Valid:
		m := imageErrorText(meta.ImageStatus.Error)
		issues = append(issues, Issue{
			Type:       SeverityError,
			Message:    m.message,
			Field:      FieldImage,
			Suggestion: m.suggestion,
		})
	}

	if meta.TwitterImage != "" && meta.TwitterImage != meta.Image &&
		meta.TwitterImageStatus != nil && !meta.TwitterImageStatus.Valid {
		m := imageErrorText(meta.TwitterImageStatus.Error)
		issues = append(issues, Issue{
			Type:       SeverityWarning,
			Message:    "Twitter image problem: " + m.message,
			Field:      FieldTwitterImage,
			Suggestion: m.suggestion,
		})
	}

	if catalog == nil {
		catalog = platforms.Default()
	}
	for _, p := range catalog.All() {
		issues = append(issues, platformIssues(meta, p, catalog.RatioTolerance())...)
	}

	return issues
}

func imageErrorText(kind opengraph.ImageErrorKind) imageMessage {
	if m, ok := imageErrorMessages[kind]; ok {
		return m
	}
	return imageErrorMessages[opengraph.ImageError]
}

// platformIssues evaluates the limits of one platform. Twitter reads its own
// tags first and falls back to Open Graph.
func platformIssues(meta opengraph.MetaData, p platforms.Platform, tolerance float64) []Issue {
	var issues []Issue

	title, description, image := meta.Title, meta.Description, meta.Image
	if p.ID == platforms.Twitter {
		title = meta.EffectiveTwitterTitle()
		description = meta.EffectiveTwitterDescription()
		image = meta.EffectiveTwitterImage()
	}

	if n := runeLen(title); n > p.TitleMaxLength {
		issues = append(issues, Issue{
			Type:           SeverityWarning,
			Message:        fmt.Sprintf("Title is too long for %s (%d/%d characters)", p.Name, n, p.TitleMaxLength),
			Field:          FieldTitle,
			Platform:       p.ID,
			Suggestion:     fmt.Sprintf("Keep the title under %d characters so %s does not cut it off", p.TitleMaxLength, p.Name),
			TruncatedValue: Truncate(title, p.TitleMaxLength),
		})
	}

	if n := runeLen(description); n > p.DescriptionMaxLength {
		issues = append(issues, Issue{
			Type:           SeverityInfo,
			Message:        fmt.Sprintf("Description will be truncated on %s (%d/%d characters)", p.Name, n, p.DescriptionMaxLength),
			Field:          FieldDescription,
			Platform:       p.ID,
			Suggestion:     fmt.Sprintf("Keep the description under %d characters for %s", p.DescriptionMaxLength, p.Name),
			TruncatedValue: Truncate(description, p.DescriptionMaxLength),
		})
	}

	if image != "" && meta.HasDimensions() {
		width, height := *meta.ImageWidth, *meta.ImageHeight

		if p.MinImageWidth > 0 && width < p.MinImageWidth {
			issues = append(issues, Issue{
				Type:       SeverityWarning,
				Message:    fmt.Sprintf("Image is too small for %s (%dx%d, minimum %dx%d)", p.Name, width, height, p.MinImageWidth, p.MinImageHeight),
				Field:      FieldImage,
				Platform:   p.ID,
				Suggestion: fmt.Sprintf("Use an image of at least %dx%d; %dx%d is recommended", p.MinImageWidth, p.MinImageHeight, p.ImageWidth, p.ImageHeight),
			})
		}

		if height > 0 && p.TargetRatio() > 0 {
			ratio := float64(width) / float64(height)
			if math.Abs(ratio-p.TargetRatio()) > tolerance {
				issues = append(issues, Issue{
					Type:       SeverityWarning,
					Message:    fmt.Sprintf("Image aspect ratio %.2f:1 will be cropped on %s (expected %s)", ratio, p.Name, p.AspectRatio),
					Field:      FieldImage,
					Platform:   p.ID,
					Suggestion: fmt.Sprintf("Use a %s image such as %dx%d", p.AspectRatio, p.ImageWidth, p.ImageHeight),
				})
			}
		}
	}

	if p.ID == platforms.Twitter && meta.TwitterCard == "" {
		issues = append(issues, Issue{
			Type:       SeverityInfo,
			Message:    "No Twitter card type declared",
			Field:      FieldTwitterCard,
			Platform:   p.ID,
			Suggestion: `Add <meta name="twitter:card" content="summary_large_image"> for a large image preview`,
		})
	}

	return issues
}

func runeLen(s string) int {
	return len([]rune(s))
}

// Truncate shortens s to at most limit runes, ending with "..." when cut
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:max(limit, 0)])
	}
	return string(runes[:limit-3]) + "..."
}
