// Package platforms holds the per-platform presentation limits used when
// validating social sharing metadata.
package platforms

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/og-monitor/configs"
)

// Well-known platform identifiers
const (
	Facebook = "facebook"
	Twitter  = "twitter"
	LinkedIn = "linkedin"
	Discord  = "discord"
	Slack    = "slack"
)

// DefaultRatioTolerance is the allowed absolute difference between the actual
// and the target image width/height ratio.
const DefaultRatioTolerance = 0.1

// embeddedCatalogFile is the name of the catalog inside configs.EmbeddedConfigs
const embeddedCatalogFile = "platforms.yaml"

// ErrUnknownPlatform is returned by Get for ids not present in the catalog
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform describes how a single platform presents shared links
type Platform struct {
	ID                   string   `yaml:"id" json:"id"`
	Name                 string   `yaml:"name" json:"name"`
	TitleMaxLength       int      `yaml:"title_max_length" json:"titleMaxLength"`
	DescriptionMaxLength int      `yaml:"description_max_length" json:"descriptionMaxLength"`
	ImageWidth           int      `yaml:"image_width" json:"imageWidth"`
	ImageHeight          int      `yaml:"image_height" json:"imageHeight"`
	AspectRatio          string   `yaml:"aspect_ratio" json:"aspectRatio"`
	MinImageWidth        int      `yaml:"min_image_width" json:"minImageWidth,omitempty"`
	MinImageHeight       int      `yaml:"min_image_height" json:"minImageHeight,omitempty"`
	MaxFileSize          int64    `yaml:"max_file_size" json:"maxFileSize,omitempty"`
	ImageFormats         []string `yaml:"image_formats" json:"imageFormats"`

	targetRatio float64
}

// TargetRatio returns the platform's aspect ratio as width divided by height
func (p Platform) TargetRatio() float64 {
	return p.targetRatio
}

// Catalog is a read-only, ordered registry of platforms
type Catalog struct {
	platforms      []Platform
	byID           map[string]int
	ratioTolerance float64
}

type catalogFile struct {
	RatioTolerance float64    `yaml:"ratio_tolerance"`
	Platforms      []Platform `yaml:"platforms"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary. Malformed embedded data
// is a programming error and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		data, err := configs.EmbeddedConfigs.ReadFile(embeddedCatalogFile)
		if err != nil {
			panic(fmt.Sprintf("platforms: embedded catalog missing: %v", err))
		}
		c, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("platforms: embedded catalog invalid: %v", err))
		}
		defaultCatalog = c
		slog.Debug("Loaded embedded platform catalog", "platforms", len(c.platforms))
	})
	return defaultCatalog
}

// Parse builds a catalog from YAML data
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse platform catalog: %w", err)
	}
	return New(file.Platforms, file.RatioTolerance)
}

// New builds a catalog from platform definitions, preserving their order.
// A zero tolerance falls back to DefaultRatioTolerance.
func New(list []Platform, ratioTolerance float64) (*Catalog, error) {
	if len(list) == 0 {
		return nil, errors.New("platform catalog is empty")
	}
	if ratioTolerance < 0 {
		return nil, fmt.Errorf("negative ratio tolerance: %v", ratioTolerance)
	}
	if ratioTolerance == 0 {
		ratioTolerance = DefaultRatioTolerance
	}

	c := &Catalog{
		platforms:      make([]Platform, 0, len(list)),
		byID:           make(map[string]int, len(list)),
		ratioTolerance: ratioTolerance,
	}

	for i, p := range list {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("platform %d (%q): %w", i, p.ID, err)
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("platform %q is defined more than once", p.ID)
		}

		ratio, err := ParseRatio(p.AspectRatio)
		if err != nil {
			return nil, fmt.Errorf("platform %q: %w", p.ID, err)
		}
		p.targetRatio = ratio
		p.ImageFormats = append([]string(nil), p.ImageFormats...)

		c.byID[p.ID] = len(c.platforms)
		c.platforms = append(c.platforms, p)
	}

	return c, nil
}

func (p Platform) validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return errors.New("id is required")
	case strings.TrimSpace(p.Name) == "":
		return errors.New("name is required")
	case p.TitleMaxLength <= 0:
		return errors.New("title_max_length must be positive")
	case p.DescriptionMaxLength <= 0:
		return errors.New("description_max_length must be positive")
	case p.ImageWidth <= 0 || p.ImageHeight <= 0:
		return errors.New("image_width and image_height must be positive")
	case p.MinImageWidth < 0 || p.MinImageHeight < 0 || p.MaxFileSize < 0:
		return errors.New("minimum sizes must not be negative")
	}
	return nil
}

// ParseRatio converts a "W:H" string such as "1.91:1" into W/H
func ParseRatio(s string) (float64, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q: sides must be positive", s)
	}
	return width / height, nil
}

// Get looks up a platform by id
func (c *Catalog) Get(id string) (Platform, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Platform{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, id)
	}
	return c.platforms[idx], nil
}

// All returns the platforms in catalog order. The returned slice is a copy.
func (c *Catalog) All() []Platform {
	out := make([]Platform, len(c.platforms))
	copy(out, c.platforms)
	return out
}

// IDs returns the platform identifiers in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.platforms))
	for i, p := range c.platforms {
		ids[i] = p.ID
	}
	return ids
}

// RatioTolerance returns the allowed aspect ratio deviation
func (c *Catalog) RatioTolerance() float64 {
	return c.ratioTolerance
}
