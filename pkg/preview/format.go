// Package preview renders an inspection report in the terminal, either as
// plain text or as an interactive Bubble Tea browser.
package preview

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/platforms"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

const rule = "═══════════════════════════════════════════════════════════════════════\n"

var severityIcons = map[validate.Severity]string{
	validate.SeverityError:   "✗",
	validate.SeverityWarning: "!",
	validate.SeverityInfo:    "i",
}

// wrapText wraps text to the specified width, breaking at word boundaries when possible
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 70
	}

	var result strings.Builder
	lineLen := 0
	for _, word := range strings.Fields(text) {
		wordLen := len([]rune(word))
		if lineLen > 0 && lineLen+1+wordLen > width {
			result.WriteString("\n")
			lineLen = 0
		}
		if lineLen > 0 {
			result.WriteString(" ")
			lineLen++
		}
		result.WriteString(word)
		lineLen += wordLen
	}
	return result.String()
}

// FormatSummary renders the headline of a report
// Example: "broken  https://example.com  (2 errors, 1 warning, 3 info) checked 3 minutes ago"
func FormatSummary(r *monitor.Report, now time.Time) string {
	return fmt.Sprintf("%-7s %s", r.Status, summaryTail(r, now))
}

func summaryTail(r *monitor.Report, now time.Time) string {
	counts := r.Counts
	if counts == nil {
		counts = validate.Counts(r.Issues)
	}
	return fmt.Sprintf("%s  (%s, %s, %d info) checked %s",
		r.URL,
		plural(counts[validate.SeverityError], "error"),
		plural(counts[validate.SeverityWarning], "warning"),
		counts[validate.SeverityInfo],
		humanize.RelTime(r.CheckedAt, now, "ago", "from now"))
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatCompactIssue formats a single issue in list form
// Example: " 1. [!] twitter     Title is too long for X (Twitter) (80/70 characters)"
func FormatCompactIssue(index int, issue validate.Issue) string {
	scope := issue.Platform
	if scope == "" {
		scope = "all"
	}

	message := issue.Message
	const maxMessageLength = 90
	if len([]rune(message)) > maxMessageLength {
		message = validate.Truncate(message, maxMessageLength)
	}

	return fmt.Sprintf("%2d. [%s] %-10s %s", index+1, severityIcons[issue.Type], scope, message)
}

// FormatDetailedIssue formats a single issue with every field
func FormatDetailedIssue(issue validate.Issue) string {
	var b strings.Builder

	b.WriteString(rule)
	fmt.Fprintf(&b, "Severity: %s\n", issue.Type)
	fmt.Fprintf(&b, "Field: %s\n", issue.Field)
	if issue.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", issue.Platform)
	}
	fmt.Fprintf(&b, "\n%s\n", wrapText(issue.Message, 70))
	if issue.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion:\n%s\n", wrapText(issue.Suggestion, 70))
	}
	if issue.TruncatedValue != "" {
		fmt.Fprintf(&b, "\nShown as:\n%s\n", wrapText(issue.TruncatedValue, 70))
	}
	b.WriteString(rule)

	return b.String()
}

// FormatMeta lists the extracted metadata
func FormatMeta(meta opengraph.MetaData) string {
	var b strings.Builder
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-13s %s\n", name+":", value)
		}
	}

	field("Title", meta.Title)
	field("Description", meta.Description)
	field("Image", meta.Image)
	if meta.HasDimensions() {
		field("Image size", fmt.Sprintf("%dx%d", *meta.ImageWidth, *meta.ImageHeight))
	}
	field("Image status", imageState(meta.ImageStatus))
	field("Site", meta.SiteName)
	field("Type", meta.Type)
	field("Twitter card", meta.TwitterCard)
	if meta.TwitterImage != "" && meta.TwitterImage != meta.Image {
		field("Twitter image", meta.TwitterImage)
		field("Twitter state", imageState(meta.TwitterImageStatus))
	}
	if meta.IsJavaScriptRequired {
		field("JavaScript", "required ("+meta.JSRenderingReason+")")
	}

	return b.String()
}

func imageState(s *opengraph.ImageStatus) string {
	switch {
	case s == nil:
		return ""
	case s.Valid:
		return "ok " + s.ContentType
	default:
		return string(s.Error) + " " + s.Message
	}
}

// FormatPlatformCard approximates how p shows the shared link
func FormatPlatformCard(meta opengraph.MetaData, p platforms.Platform) string {
	title, description, image := meta.Title, meta.Description, meta.Image
	if p.ID == platforms.Twitter {
		title = meta.EffectiveTwitterTitle()
		description = meta.EffectiveTwitterDescription()
		image = meta.EffectiveTwitterImage()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "┌─ %s\n", p.Name)
	if image != "" {
		fmt.Fprintf(&b, "│ [image %s, %dx%d recommended]\n", p.AspectRatio, p.ImageWidth, p.ImageHeight)
	} else {
		b.WriteString("│ [no image]\n")
	}
	fmt.Fprintf(&b, "│ %s\n", orPlaceholder(validate.Truncate(title, p.TitleMaxLength), "(no title)"))
	for _, line := range strings.Split(wrapText(validate.Truncate(description, p.DescriptionMaxLength), 66), "\n") {
		if line != "" {
			fmt.Fprintf(&b, "│ %s\n", line)
		}
	}
	b.WriteString("└─\n")
	return b.String()
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// FormatReport renders a full report as plain text for non-interactive output
func FormatReport(r *monitor.Report, catalog *platforms.Catalog, now time.Time) string {
	var b strings.Builder

	b.WriteString(FormatSummary(r, now))
	b.WriteString("\n\n")
	b.WriteString(FormatMeta(r.Meta))

	if len(r.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for i, issue := range r.Issues {
			b.WriteString(FormatCompactIssue(i, issue))
			b.WriteString("\n")
		}
	}

	if catalog != nil {
		b.WriteString("\n")
		for _, p := range catalog.All() {
			b.WriteString(FormatPlatformCard(r.Meta, p))
		}
	}

	return b.String()
}
