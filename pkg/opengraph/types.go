// Package opengraph fetches web pages and extracts their Open Graph and
// Twitter Card metadata.
package opengraph

// ImageErrorKind classifies why an image URL could not be used
type ImageErrorKind string

// Image accessibility failure kinds
const (
	ImageNotFound ImageErrorKind = "not_found"
	ImageNotImage ImageErrorKind = "not_image"
	ImageTimeout  ImageErrorKind = "timeout"
	ImageError    ImageErrorKind = "error"
)

// ImageStatus is the result of probing an image URL. When Valid is true only
// ContentType is meaningful, otherwise Error and Message are.
type ImageStatus struct {
	Valid       bool           `json:"valid"`
	ContentType string         `json:"contentType,omitempty"`
	Error       ImageErrorKind `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// ValidImage returns a status for a reachable image
func ValidImage(contentType string) ImageStatus {
	return ImageStatus{Valid: true, ContentType: contentType}
}

// InvalidImage returns a status for an unusable image
func InvalidImage(kind ImageErrorKind, message string) ImageStatus {
	return ImageStatus{Error: kind, Message: message}
}

// MetaData is the normalized social metadata of one fetched page. Empty
// strings and nil pointers mean the tag was absent.
type MetaData struct {
	URL         string       `json:"url"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	SiteName    string       `json:"siteName,omitempty"`
	Type        string       `json:"type,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	ImageStatus *ImageStatus `json:"imageStatus,omitempty"`
	ImageWidth  *int         `json:"imageWidth,omitempty"`
	ImageHeight *int         `json:"imageHeight,omitempty"`

	TwitterCard        string       `json:"twitterCard,omitempty"`
	TwitterSite        string       `json:"twitterSite,omitempty"`
	TwitterCreator     string       `json:"twitterCreator,omitempty"`
	TwitterTitle       string       `json:"twitterTitle,omitempty"`
	TwitterDescription string       `json:"twitterDescription,omitempty"`
	TwitterImage       string       `json:"twitterImage,omitempty"`
	TwitterImageStatus *ImageStatus `json:"twitterImageStatus,omitempty"`

	IsJavaScriptRequired bool   `json:"isJavaScriptRequired"`
	JSRenderingReason    string `json:"jsRenderingReason,omitempty"`
}

// EffectiveTwitterTitle returns the Twitter title, falling back to og:title
func (m MetaData) EffectiveTwitterTitle() string {
	if m.TwitterTitle != "" {
		return m.TwitterTitle
	}
	return m.Title
}

// EffectiveTwitterDescription returns the Twitter description, falling back to og:description
func (m MetaData) EffectiveTwitterDescription() string {
	if m.TwitterDescription != "" {
		return m.TwitterDescription
	}
	return m.Description
}

// EffectiveTwitterImage returns the Twitter image, falling back to og:image
func (m MetaData) EffectiveTwitterImage() string {
	if m.TwitterImage != "" {
		return m.TwitterImage
	}
	return m.Image
}

// HasDimensions reports whether both explicit image dimensions are known
func (m MetaData) HasDimensions() bool {
	return m.ImageWidth != nil && m.ImageHeight != nil
}

// Page is the raw result of a successful fetch
type Page struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
}

// Snapshot is the subset of MetaData kept between checks to detect changes
type Snapshot struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	ImageStatus *ImageStatus `json:"imageStatus,omitempty"`
}

// Snapshot projects m onto the fields compared between checks
func (m MetaData) Snapshot() Snapshot {
	s := Snapshot{Title: m.Title, Description: m.Description, Image: m.Image}
	if m.ImageStatus != nil {
		status := *m.ImageStatus
		s.ImageStatus = &status
	}
	return s
}
