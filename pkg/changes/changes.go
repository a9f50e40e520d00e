// Package changes compares successive metadata snapshots of a monitored page.
package changes

import (
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
)

// Type identifies a kind of change
type Type string

// Change types
const (
	ImageBroken        Type = "image_broken"
	ImageRemoved       Type = "image_removed"
	ImageChanged       Type = "image_changed"
	TitleMissing       Type = "title_missing"
	TitleChanged       Type = "title_changed"
	DescriptionMissing Type = "description_missing"
	DescriptionChanged Type = "description_changed"
	TagsRemoved        Type = "tags_removed"
	StatusError        Type = "status_error"
)

var messages = map[Type]string{
	ImageBroken:        "Image is no longer accessible",
	ImageRemoved:       "Image tag was removed",
	ImageChanged:       "Image URL changed",
	TitleMissing:       "Title tag was removed",
	TitleChanged:       "Title changed",
	DescriptionMissing: "Description was removed",
	DescriptionChanged: "Description changed",
	TagsRemoved:        "All social meta tags were removed",
	StatusError:        "Page could not be checked",
}

// Message returns the fixed human readable text for t
func (t Type) Message() string {
	if m, ok := messages[t]; ok {
		return m
	}
	return string(t)
}

// Breaking reports whether t belongs to BreakingTypes
func (t Type) Breaking() bool {
	_, ok := breaking[t]
	return ok
}

// BreakingTypes are the changes that degrade a shared link preview
var BreakingTypes = []Type{ImageBroken, ImageRemoved, TitleMissing, TagsRemoved}

var breaking = func() map[Type]struct{} {
	m := make(map[Type]struct{}, len(BreakingTypes))
	for _, t := range BreakingTypes {
		m[t] = struct{}{}
	}
	return m
}()

// Change is one difference between two snapshots. Nil values mean the field
// was absent.
type Change struct {
	Type          Type    `json:"type"`
	Message       string  `json:"message"`
	PreviousValue *string `json:"previousValue"`
	CurrentValue  *string `json:"currentValue"`
}

// Policy selects which detected changes are reported
type Policy string

// Reporting policies. Manual checks are strict, scheduled checks only report
// breaking changes.
const (
	PolicyStrict       Policy = "strict"
	PolicyBreakingOnly Policy = "breaking-only"
)

// Allows reports whether policy reports changes of type t
func (p Policy) Allows(t Type) bool {
	if p == PolicyBreakingOnly {
		return t.Breaking()
	}
	return true
}

// New builds a change with the fixed message for t
func New(t Type, previous, current string) Change {
	return Change{Type: t, Message: t.Message(), PreviousValue: optional(previous), CurrentValue: optional(current)}
}

// Detect compares prev with cur. A nil prev is a first check and can only
// report a broken image.
func Detect(prev *opengraph.Snapshot, cur opengraph.Snapshot, policy Policy) []Change {
	return Filter(detect(prev, cur), policy)
}

func detect(prev *opengraph.Snapshot, cur opengraph.Snapshot) []Change {
	changes := make([]Change, 0)

	if prev == nil {
		if isInvalid(cur.ImageStatus) {
			changes = append(changes, New(ImageBroken, "", cur.Image))
		}
		return changes
	}

	if prev.Title != "" && cur.Title == "" {
		changes = append(changes, New(TitleMissing, prev.Title, ""))
	}
	if cur.Title != "" && cur.Title != prev.Title {
		changes = append(changes, New(TitleChanged, prev.Title, cur.Title))
	}

	if prev.Description != "" && cur.Description == "" {
		changes = append(changes, New(DescriptionMissing, prev.Description, ""))
	}
	if cur.Description != "" && cur.Description != prev.Description {
		changes = append(changes, New(DescriptionChanged, prev.Description, cur.Description))
	}

	if prev.Image != "" && cur.Image == "" {
		changes = append(changes, New(ImageRemoved, prev.Image, ""))
	}
	if cur.Image != "" && cur.Image != prev.Image {
		changes = append(changes, New(ImageChanged, prev.Image, cur.Image))
	}
	if isValid(prev.ImageStatus) && cur.Image != "" && isInvalid(cur.ImageStatus) {
		changes = append(changes, New(ImageBroken, prev.Image, cur.Image))
	}

	if prev.Title != "" && prev.Description != "" && prev.Image != "" &&
		cur.Title == "" && cur.Description == "" && cur.Image == "" {
		changes = append(changes, Change{Type: TagsRemoved, Message: TagsRemoved.Message()})
	}

	return changes
}

// Filter keeps the changes policy reports, preserving order
func Filter(changes []Change, policy Policy) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if policy.Allows(c.Type) {
			out = append(out, c)
		}
	}
	return out
}

func isValid(s *opengraph.ImageStatus) bool {
	return s != nil && s.Valid
}

func isInvalid(s *opengraph.ImageStatus) bool {
	return s != nil && !s.Valid
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
