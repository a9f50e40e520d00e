// Package feed renders monitor alerts as Atom or RSS feeds so they can be
// followed in any feed reader.
package feed

import (
	"time"
)

// Generator holds the feed level metadata
type Generator struct {
	Title       string
	Description string
	Link        string
	Author      string
}

// NewGenerator creates a new feed generator
func NewGenerator(title, description, link, author string) *Generator {
	return &Generator{
		Title:       title,
		Description: description,
		Link:        link,
		Author:      author,
	}
}

// Item is a single feed entry
type Item struct {
	Title       string
	Link        string
	Description string
	Author      string
	Created     time.Time
	ID          string
	Categories  []string
}

// FeedType represents the type of feed to generate
type FeedType string

// Supported feed types
const (
	RSS  FeedType = "rss"
	Atom FeedType = "atom"
)

// ContentType returns the HTTP content type for the feed type
func (t FeedType) ContentType() string {
	if t == RSS {
		return "application/rss+xml; charset=utf-8"
	}
	return "application/atom+xml; charset=utf-8"
}
