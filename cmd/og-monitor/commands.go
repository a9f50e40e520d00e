package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/lepinkainen/og-monitor/internal/config"
	"github.com/lepinkainen/og-monitor/internal/server"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/preview"
	"github.com/lepinkainen/og-monitor/pkg/urlutils"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func inspect(ctx context.Context, cfg *config.Config, url string) (*app, *monitor.Report, error) {
	if !urlutils.IsHTTPURL(url) {
		return nil, nil, fmt.Errorf("not an absolute http or https URL: %q", url)
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	report, err := a.orchestrator.Inspect(ctx, url)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, report, nil
}

func checkURL(ctx context.Context, out io.Writer, cfg *config.Config, url string, asJSON, tagsOnly bool) error {
	a, report, err := inspect(ctx, cfg, url)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case tagsOnly:
		_, err = fmt.Fprintln(out, report.Tags)
	case asJSON:
		err = writeJSON(out, report)
	default:
		_, err = io.WriteString(out, preview.FormatReport(report, a.catalog, time.Now()))
	}
	return err
}

func previewURL(ctx context.Context, out io.Writer, cfg *config.Config, url string, plain bool) error {
	a, report, err := inspect(ctx, cfg, url)
	if err != nil {
		return err
	}
	defer a.Close()

	if plain {
		_, err = io.WriteString(out, preview.FormatReport(report, a.catalog, time.Now()))
		return err
	}
	return preview.Run(report, a.catalog)
}

func batchRunner(a *app) *monitor.BatchRunner {
	batch := monitor.NewBatchRunner(a.orchestrator)
	if a.cfg.Batch.Size > 0 {
		batch.BatchSize = a.cfg.Batch.Size
	}
	if a.cfg.Batch.Pause >= 0 {
		batch.BatchPause = a.cfg.Batch.Pause
	}
	return batch
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	s := server.New(server.Options{
		Orchestrator: a.orchestrator,
		Batch:        batchRunner(a),
		CronSecret:   cfg.Server.CronSecret,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	return s.ListenAndServe(ctx, cfg.Server.Addr)
}

func runDue(ctx context.Context, out io.Writer, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := batchRunner(a).RunDue(ctx, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "checked %d monitors: %d succeeded, %d failed, %d alerts\n",
		result.Total, result.Success, result.Failed, result.Alerts)
	return err
}

func withStore(ctx context.Context, cfg *config.Config, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func addMonitor(ctx context.Context, out io.Writer, cfg *config.Config, url, user, nickname, frequency string, alerts bool, notifyTo string) error {
	freq, err := monitor.ParseFrequency(frequency)
	if err != nil {
		return err
	}
	m := monitor.NewMonitor(user, strings.TrimSpace(url), freq, time.Now())
	m.Nickname = nickname
	m.AlertsEnabled = alerts
	m.NotifyTo = notifyTo
	if err := m.Validate(); err != nil {
		return err
	}

	return withStore(ctx, cfg, func(a *app) error {
		if err := a.store.CreateMonitor(ctx, m); err != nil {
			if errors.Is(err, monitor.ErrDuplicate) {
				return fmt.Errorf("%s is already monitored for %s", m.URL, user)
			}
			return err
		}
		_, err := fmt.Fprintf(out, "added monitor %s for %s\n", m.ID, m.URL)
		return err
	})
}

func listMonitors(ctx context.Context, out io.Writer, cfg *config.Config, user string) error {
	return withStore(ctx, cfg, func(a *app) error {
		monitors, err := a.store.ListMonitors(ctx, user)
		if err != nil {
			return err
		}
		if len(monitors) == 0 {
			_, err := fmt.Fprintln(out, "no monitors")
			return err
		}

		t := newTable("ID", "Name", "Status", "Frequency", "Alerts", "Last checked")
		for i := range monitors {
			m := &monitors[i]
			t.Row(m.ID, m.DisplayName(), statusLabel(m.Status), string(m.CheckFrequency),
				strconv.FormatBool(m.AlertsEnabled), lastChecked(m.LastCheckedAt))
		}
		_, err = fmt.Fprintln(out, t.String())
		return err
	})
}

func statusLabel(s validate.Status) string {
	if s == "" {
		return "unchecked"
	}
	return string(s)
}

func lastChecked(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func removeMonitor(ctx context.Context, out io.Writer, cfg *config.Config, id string) error {
	return withStore(ctx, cfg, func(a *app) error {
		if err := a.store.DeleteMonitor(ctx, id); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "removed monitor %s\n", id)
		return err
	})
}

func checkMonitor(ctx context.Context, out io.Writer, cfg *config.Config, id string) error {
	return withStore(ctx, cfg, func(a *app) error {
		outcome, err := a.orchestrator.RunCheck(ctx, id, monitor.TriggerManual)
		if err != nil {
			return err
		}
		return printOutcome(out, outcome)
	})
}

func printOutcome(out io.Writer, o *monitor.Outcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", o.Monitor.DisplayName(), o.Check.Status)
	for i, issue := range o.Issues {
		b.WriteString(preview.FormatCompactIssue(i, issue))
		b.WriteString("\n")
	}
	for _, c := range o.Changes {
		fmt.Fprintf(&b, "change: %s (%s)\n", c.Message, c.Type)
	}
	if len(o.Alerts) > 0 {
		fmt.Fprintf(&b, "%s raised\n", plural(len(o.Alerts), "alert"))
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func listAlerts(ctx context.Context, out io.Writer, cfg *config.Config, id string, all bool, limit int) error {
	var acknowledged *bool
	if !all {
		open := false
		acknowledged = &open
	}

	return withStore(ctx, cfg, func(a *app) error {
		if _, err := a.store.GetMonitor(ctx, id); err != nil {
			return err
		}
		alerts, err := a.store.ListAlerts(ctx, id, acknowledged, limit)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			_, err := fmt.Fprintln(out, "no alerts")
			return err
		}

		t := newTable("ID", "Type", "Message", "Raised", "Acknowledged")
		for _, alert := range alerts {
			t.Row(alert.ID, string(alert.Type), alert.Message, humanize.Time(alert.CreatedAt), strconv.FormatBool(alert.Acknowledged))
		}
		_, err = fmt.Fprintln(out, t.String())
		return err
	})
}

func ackAlert(ctx context.Context, out io.Writer, cfg *config.Config, id string) error {
	return withStore(ctx, cfg, func(a *app) error {
		if err := a.store.AcknowledgeAlert(ctx, id, time.Now()); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "acknowledged alert %s\n", id)
		return err
	})
}

func showPlatforms(ctx context.Context, out io.Writer, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	t := newTable("ID", "Name", "Title", "Description", "Image", "Ratio")
	for _, p := range a.catalog.All() {
		t.Row(p.ID, p.Name, strconv.Itoa(p.TitleMaxLength), strconv.Itoa(p.DescriptionMaxLength),
			fmt.Sprintf("%dx%d", p.ImageWidth, p.ImageHeight), p.AspectRatio)
	}
	_, err = fmt.Fprintf(out, "catalog source: %s\n%s\n", a.catalogSource, t.String())
	return err
}

func cacheStats(ctx context.Context, out io.Writer, cfg *config.Config) error {
	a := &app{cfg: cfg}
	defer a.Close()

	cache, err := a.openImageCache(ctx)
	if err != nil {
		return err
	}
	stats, err := cache.Stats(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s cached image results (%s valid, %s expired)\n",
		humanize.Comma(stats.Total), humanize.Comma(stats.Valid), humanize.Comma(stats.Expired))
	return err
}

func cachePrune(ctx context.Context, out io.Writer, cfg *config.Config) error {
	a := &app{cfg: cfg}
	defer a.Close()

	cache, err := a.openImageCache(ctx)
	if err != nil {
		return err
	}
	removed, err := cache.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "removed %s expired entries\n", humanize.Comma(removed))
	return err
}

func initConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := config.SaveConfig(config.Default(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	_, err := fmt.Fprintf(out, "wrote %s\n", path)
	return err
}
