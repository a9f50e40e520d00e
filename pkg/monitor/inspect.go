package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// Report is the result of a one-off check that is not persisted
type Report struct {
	URL       string                    `json:"url"`
	Meta      opengraph.MetaData        `json:"meta"`
	Issues    []validate.Issue          `json:"issues"`
	Status    validate.Status           `json:"status"`
	Counts    map[validate.Severity]int `json:"counts"`
	Tags      string                    `json:"tags"`
	CheckedAt time.Time                 `json:"checkedAt"`
}

// Inspect runs the pipeline for rawURL without touching the datastore.
// Unlike RunCheck, a fetch failure is returned as an error.
func (o *Orchestrator) Inspect(ctx context.Context, rawURL string) (*Report, error) {
	page, err := o.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	meta := o.extractor.Extract(page.HTML, page.FinalURL)
	meta = opengraph.ProbeImages(ctx, o.inspectProbe, meta)
	issues := o.validator.Validate(meta)

	tags, err := opengraph.GenerateTags(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tags: %w", err)
	}

	report := &Report{
		URL:       rawURL,
		Meta:      meta,
		Issues:    issues,
		Status:    validate.DeriveStatus(issues),
		Counts:    validate.Counts(issues),
		Tags:      tags,
		CheckedAt: o.now(),
	}
	slog.Debug("Inspected URL", "url", rawURL, "final_url", page.FinalURL, "status", report.Status, "issues", len(issues))
	return report, nil
}
