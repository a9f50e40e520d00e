package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/og-monitor/internal/metrics"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// Built-in channel names
const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// Config configures every built-in channel. Channels lists the ones to enable.
type Config struct {
	Channels []string
	Webhook  WebhookConfig
	Email    EmailConfig
}

// Multi fans a notification out to several channels
type Multi struct {
	channels []Channel
}

// NewMulti combines channels
func NewMulti(channels ...Channel) *Multi {
	return &Multi{channels: channels}
}

// Channels returns the names of the combined channels
func (m *Multi) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify delivers n on every channel, even when earlier ones fail, and
// returns all failures joined
func (m *Multi) Notify(ctx context.Context, n monitor.Notification) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, n); err != nil {
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.ResultFailure).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.ResultSuccess).Inc()
	}
	return errors.Join(errs...)
}

// Subject is the one line summary of a notification
func Subject(n monitor.Notification) string {
	return fmt.Sprintf("[og-monitor] %s: %s", n.Monitor.DisplayName(), n.Alert.Message)
}

// Body is the plain text description of a notification
func Body(n monitor.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", n.Alert.Message)
	fmt.Fprintf(&b, "URL: %s\n", n.Monitor.URL)
	if n.Check.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", n.Check.Status)
	}
	if n.Alert.PreviousValue != nil {
		fmt.Fprintf(&b, "Before: %s\n", *n.Alert.PreviousValue)
	}
	if n.Alert.CurrentValue != nil {
		fmt.Fprintf(&b, "Now: %s\n", *n.Alert.CurrentValue)
	}
	fmt.Fprintf(&b, "Checked: %s\n", n.Check.CheckedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// LogChannel writes alerts to slog
type LogChannel struct{}

// NewLogChannel returns a log channel
func NewLogChannel() *LogChannel {
	return &LogChannel{}
}

// Name implements Channel
func (*LogChannel) Name() string { return ChannelLog }

// Notify implements monitor.Notifier
func (*LogChannel) Notify(_ context.Context, n monitor.Notification) error {
	slog.Info("Monitor alert",
		"monitor", n.Monitor.ID,
		"url", n.Monitor.URL,
		"type", n.Alert.Type,
		"message", n.Alert.Message,
		"status", n.Check.Status,
		"destination", n.Destination)
	return nil
}
