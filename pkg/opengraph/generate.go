package opengraph

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
)

// tagsTemplate renders one meta element per line. html/template escapes the
// attribute values.
var tagsTemplate = template.Must(template.New("tags").Parse(
	`{{range .}}{{if .Property}}<meta property="{{.Key}}" content="{{.Value}}">{{else}}<meta name="{{.Key}}" content="{{.Value}}">{{end}}
{{end}}`))

type tag struct {
	Property bool
	Key      string
	Value    string
}

// GenerateTags renders the recommended Open Graph and Twitter Card tags for
// meta as an HTML snippet suitable for a page's <head>. Absent fields are
// omitted; og:type defaults to "website" and the card type is chosen from
// whether an image is present.
func GenerateTags(meta MetaData) (string, error) {
	var tags []tag
	add := func(property bool, key, value string) {
		if value != "" {
			tags = append(tags, tag{Property: property, Key: key, Value: value})
		}
	}

	add(true, "og:title", meta.Title)
	add(true, "og:description", meta.Description)
	add(true, "og:url", meta.URL)
	add(true, "og:type", orDefault(meta.Type, "website"))
	add(true, "og:site_name", meta.SiteName)
	add(true, "og:locale", meta.Locale)
	add(true, "og:image", meta.Image)
	if meta.HasDimensions() {
		add(true, "og:image:width", strconv.Itoa(*meta.ImageWidth))
		add(true, "og:image:height", strconv.Itoa(*meta.ImageHeight))
	}

	card := meta.TwitterCard
	if card == "" {
		card = "summary"
		if meta.EffectiveTwitterImage() != "" {
			card = "summary_large_image"
		}
	}
	add(false, "twitter:card", card)
	add(false, "twitter:title", meta.EffectiveTwitterTitle())
	add(false, "twitter:description", meta.EffectiveTwitterDescription())
	add(false, "twitter:image", meta.EffectiveTwitterImage())
	add(false, "twitter:site", meta.TwitterSite)
	add(false, "twitter:creator", meta.TwitterCreator)

	var buf bytes.Buffer
	if err := tagsTemplate.Execute(&buf, tags); err != nil {
		return "", fmt.Errorf("failed to render tags: %w", err)
	}
	return buf.String(), nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
