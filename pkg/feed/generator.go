package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/feeds"
)

const atomNamespace = "http://www.w3.org/2005/Atom"

// Generate builds a feed from items. The feed is stamped with the newest item
// time so unchanged alert lists render identically.
func (g *Generator) Generate(items []Item, feedType FeedType) (*feeds.Feed, error) {
	if feedType != RSS && feedType != Atom {
		return nil, fmt.Errorf("unsupported feed type: %s", feedType)
	}

	updated := newest(items)
	feed := &feeds.Feed{
		Title:       g.Title,
		Link:        &feeds.Link{Href: g.Link},
		Description: g.Description,
		Author:      &feeds.Author{Name: g.Author},
		Id:          g.Link,
		Created:     updated,
		Updated:     updated,
	}

	for _, item := range items {
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.Link},
			Description: item.Description,
			Author:      &feeds.Author{Name: item.Author},
			Created:     item.Created,
			Updated:     item.Created,
			Id:          item.ID,
		})
	}

	slog.Debug("Generated feed", "type", feedType, "items", len(feed.Items))
	return feed, nil
}

// Write renders items to w. Atom output carries per-entry categories.
func (g *Generator) Write(w io.Writer, items []Item, feedType FeedType) error {
	feed, err := g.Generate(items, feedType)
	if err != nil {
		return err
	}

	if feedType == RSS {
		if err := feed.WriteRss(w); err != nil {
			return fmt.Errorf("failed to write rss feed: %w", err)
		}
		return nil
	}

	categories := make(map[string][]string, len(items))
	for _, item := range items {
		categories[item.ID] = item.Categories
	}

	data, err := xml.MarshalIndent(g.toCategorizedAtom(feed, categories), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal atom feed: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header+string(data)); err != nil {
		return fmt.Errorf("failed to write atom feed: %w", err)
	}
	return nil
}

func newest(items []Item) time.Time {
	var t time.Time
	for _, item := range items {
		if item.Created.After(t) {
			t = item.Created
		}
	}
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
