package feed

import (
	"encoding/xml"

	"github.com/gorilla/feeds"
)

// atomCategory is an Atom category element; gorilla/feeds only supports a
// single category string per entry
type atomCategory struct {
	XMLName xml.Name `xml:"category"`
	Term    string   `xml:"term,attr"`
	Label   string   `xml:"label,attr,omitempty"`
}

type atomEntry struct {
	XMLName    xml.Name           `xml:"entry"`
	Title      string             `xml:"title"`
	Updated    string             `xml:"updated"`
	ID         string             `xml:"id"`
	Categories []atomCategory     `xml:"category"`
	Published  string             `xml:"published,omitempty"`
	Links      []feeds.AtomLink   `xml:"link"`
	Summary    *feeds.AtomSummary `xml:"summary,omitempty"`
	Author     *feeds.AtomAuthor  `xml:"author,omitempty"`
}

type atomFeed struct {
	XMLName  xml.Name          `xml:"feed"`
	Xmlns    string            `xml:"xmlns,attr"`
	Title    string            `xml:"title"`
	ID       string            `xml:"id"`
	Updated  string            `xml:"updated"`
	Link     *feeds.AtomLink   `xml:"link,omitempty"`
	Author   *feeds.AtomAuthor `xml:"author,omitempty"`
	Subtitle string            `xml:"subtitle,omitempty"`
	Entries  []*atomEntry      `xml:"entry"`
}

// toCategorizedAtom converts a gorilla feed to Atom, attaching categories by entry ID
func (g *Generator) toCategorizedAtom(feed *feeds.Feed, categories map[string][]string) *atomFeed {
	standard := (&feeds.Atom{Feed: feed}).AtomFeed()

	out := &atomFeed{
		Xmlns:    atomNamespace,
		Title:    standard.Title,
		ID:       g.Link,
		Updated:  standard.Updated,
		Link:     standard.Link,
		Author:   standard.Author,
		Subtitle: standard.Subtitle,
	}

	for i, entry := range standard.Entries {
		id := feed.Items[i].Id
		e := &atomEntry{
			Title:     entry.Title,
			Updated:   entry.Updated,
			ID:        id,
			Published: entry.Published,
			Links:     entry.Links,
			Summary:   entry.Summary,
			Author:    entry.Author,
		}
		for _, c := range categories[id] {
			e.Categories = append(e.Categories, atomCategory{Term: c, Label: c})
		}
		out.Entries = append(out.Entries, e)
	}

	return out
}
