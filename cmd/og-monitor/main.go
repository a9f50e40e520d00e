// Package main provides the CLI entry point for og-monitor.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/lepinkainen/og-monitor/internal/config"
)

// CLI structure
var CLI struct {
	Config string `help:"Configuration file path" default:"config.yaml"`
	Debug  bool   `help:"Enable debug logging" default:"false"`

	Check struct {
		URL  string `arg:"" help:"Page to check"`
		JSON bool   `help:"Print the report as JSON"`
		Tags bool   `help:"Print only the suggested meta tags"`
	} `cmd:"check" help:"Check a URL once without saving anything."`

	Preview struct {
		URL   string `arg:"" help:"Page to preview"`
		Plain bool   `help:"Print a plain text report instead of the interactive view"`
	} `cmd:"preview" help:"Browse a URL's metadata, issues and platform cards interactively."`

	Serve struct {
		Addr string `help:"Listen address, overrides server.addr"`
		JSON bool   `help:"Log as JSON" name:"log-json"`
	} `cmd:"serve" help:"Run the HTTP API."`

	RunDue struct{} `cmd:"run-due" help:"Run a scheduled check for every monitor that is due."`

	Monitor struct {
		Add struct {
			URL       string `arg:"" help:"Page to monitor"`
			User      string `help:"Owner of the monitor" default:"local"`
			Nickname  string `help:"Display name"`
			Frequency string `help:"Check frequency (daily, hourly)" default:"daily" enum:"daily,hourly"`
			NoAlerts  bool   `help:"Disable alerts"`
			NotifyTo  string `help:"Notification destination (email address or webhook URL)"`
		} `cmd:"add" help:"Register a URL for periodic checks."`

		List struct {
			User string `help:"Only list monitors of this user"`
		} `cmd:"list" help:"List monitors."`

		Remove struct {
			ID string `arg:"" help:"Monitor ID"`
		} `cmd:"remove" help:"Delete a monitor with its checks and alerts."`

		Check struct {
			ID string `arg:"" help:"Monitor ID"`
		} `cmd:"check" help:"Run a manual check for a monitor."`

		Alerts struct {
			ID    string `arg:"" help:"Monitor ID"`
			All   bool   `help:"Include acknowledged alerts"`
			Limit int    `help:"Maximum number of alerts" default:"20"`
		} `cmd:"alerts" help:"List a monitor's alerts."`

		Ack struct {
			ID string `arg:"" help:"Alert ID"`
		} `cmd:"ack" help:"Acknowledge an alert."`
	} `cmd:"monitor" help:"Manage monitored URLs."`

	Platforms struct{} `cmd:"platforms" help:"Show the platform catalog in use."`

	Cache struct {
		Stats struct{} `cmd:"stats" help:"Show image probe cache statistics."`
		Prune struct{} `cmd:"prune" help:"Remove expired image probe results."`
	} `cmd:"cache" help:"Inspect the image probe cache."`

	ConfigCmd struct {
		Init struct {
			Force bool `help:"Overwrite an existing file"`
		} `cmd:"init" help:"Write a configuration file with the default settings."`
	} `cmd:"config" name:"config" help:"Manage the configuration file."`
}

func main() {
	// Parse CLI with Kong YAML configuration file loading
	kctx := kong.Parse(&CLI,
		kong.Name("og-monitor"),
		kong.Description("Check and monitor social sharing metadata."),
		kong.Configuration(kongyaml.Loader, "og-monitor.yaml", "~/.og-monitor/og-monitor.yaml"),
	)

	level := slog.LevelWarn
	if CLI.Debug {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)

	cfg, err := config.LoadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "path", CLI.Config, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, kctx.Command(), cfg, level); err != nil {
		slog.Error("Command failed", "command", kctx.Command(), "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, level slog.Level) error {
	out := os.Stdout

	switch command {
	case "check <url>":
		return checkURL(ctx, out, cfg, CLI.Check.URL, CLI.Check.JSON, CLI.Check.Tags)

	case "preview <url>":
		return previewURL(ctx, out, cfg, CLI.Preview.URL, CLI.Preview.Plain)

	case "serve":
		if CLI.Serve.Addr != "" {
			cfg.Server.Addr = CLI.Serve.Addr
		}
		if CLI.Serve.JSON || cfg.Server.LogJSON {
			initJSONLogger(level)
		} else {
			// The API is useless without request logs
			slog.SetLogLoggerLevel(min(level, slog.LevelInfo))
		}
		return serve(ctx, cfg)

	case "run-due":
		return runDue(ctx, out, cfg)

	case "monitor add <url>":
		a := CLI.Monitor.Add
		return addMonitor(ctx, out, cfg, a.URL, a.User, a.Nickname, a.Frequency, !a.NoAlerts, a.NotifyTo)

	case "monitor list":
		return listMonitors(ctx, out, cfg, CLI.Monitor.List.User)

	case "monitor remove <id>":
		return removeMonitor(ctx, out, cfg, CLI.Monitor.Remove.ID)

	case "monitor check <id>":
		return checkMonitor(ctx, out, cfg, CLI.Monitor.Check.ID)

	case "monitor alerts <id>":
		return listAlerts(ctx, out, cfg, CLI.Monitor.Alerts.ID, CLI.Monitor.Alerts.All, CLI.Monitor.Alerts.Limit)

	case "monitor ack <id>":
		return ackAlert(ctx, out, cfg, CLI.Monitor.Ack.ID)

	case "platforms":
		return showPlatforms(ctx, out, cfg)

	case "cache stats":
		return cacheStats(ctx, out, cfg)

	case "cache prune":
		return cachePrune(ctx, out, cfg)

	case "config init":
		return initConfig(out, CLI.Config, CLI.ConfigCmd.Init.Force)

	default:
		panic(command)
	}
}

// initJSONLogger switches the default logger to JSON lines on stderr
func initJSONLogger(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: min(level, slog.LevelInfo)})
	slog.SetDefault(slog.New(handler))
}
