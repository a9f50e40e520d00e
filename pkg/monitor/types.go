// Package monitor runs the fetch, extract, validate and diff pipeline for
// registered URLs and records the results.
package monitor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/urlutils"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// Frequency is how often a monitor is due for a scheduled check
type Frequency string

// Check frequencies
const (
	FrequencyDaily  Frequency = "daily"
	FrequencyHourly Frequency = "hourly"
)

// Interval returns the minimum time between scheduled checks. Unknown
// frequencies are treated as daily.
func (f Frequency) Interval() time.Duration {
	if f == FrequencyHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// ParseFrequency accepts "daily", "hourly" or an empty string (daily)
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case "", FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyHourly:
		return FrequencyHourly, nil
	default:
		return "", fmt.Errorf("invalid check frequency %q", s)
	}
}

// Monitor is a URL registered for periodic checking. An empty Status means
// the monitor has not been checked yet.
type Monitor struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId"`
	URL            string              `json:"url"`
	Nickname       string              `json:"nickname,omitempty"`
	CheckFrequency Frequency           `json:"checkFrequency"`
	AlertsEnabled  bool                `json:"alertsEnabled"`
	NotifyTo       string              `json:"notifyTo,omitempty"`
	Status         validate.Status     `json:"status,omitempty"`
	LastCheckedAt  *time.Time          `json:"lastCheckedAt,omitempty"`
	LastSnapshot   *opengraph.Snapshot `json:"lastSnapshot,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// NewMonitor returns a monitor with a fresh ID and timestamps. Alerts are
// enabled by default. The URL is normalized when it parses; Validate reports
// it otherwise.
func NewMonitor(userID, rawURL string, frequency Frequency, now time.Time) *Monitor {
	if normalized, err := urlutils.Normalize(rawURL); err == nil {
		rawURL = normalized
	}
	return &Monitor{
		ID:             uuid.NewString(),
		UserID:         userID,
		URL:            rawURL,
		CheckFrequency: frequency,
		AlertsEnabled:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the fields a caller controls
func (m *Monitor) Validate() error {
	if m.URL == "" {
		return fmt.Errorf("monitor URL is required")
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		return fmt.Errorf("invalid monitor URL %q: %w", m.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("monitor URL must be http or https, got %q", m.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("monitor URL %q has no host", m.URL)
	}
	if _, err := ParseFrequency(string(m.CheckFrequency)); err != nil {
		return err
	}
	return nil
}

// Due reports whether the monitor should be checked at now. Never checked
// monitors are always due.
func (m *Monitor) Due(now time.Time) bool {
	if m.LastCheckedAt == nil {
		return true
	}
	return !m.LastCheckedAt.After(now.Add(-m.CheckFrequency.Interval()))
}

// DisplayName returns the nickname, or the URL when none is set
func (m *Monitor) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.URL
}

// Check is the persisted result of one run of the pipeline. Meta is nil when
// the page could not be fetched.
type Check struct {
	ID          string                 `json:"id"`
	MonitorID   string                 `json:"monitorId"`
	Status      validate.Status        `json:"status"`
	Issues      []validate.Issue       `json:"issues"`
	Meta        *opengraph.MetaData    `json:"snapshot,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Image       string                 `json:"image,omitempty"`
	ImageStatus *opengraph.ImageStatus `json:"imageStatus,omitempty"`
	CheckedAt   time.Time              `json:"checkedAt"`
}

func newCheck(monitorID string, issues []validate.Issue, meta *opengraph.MetaData, at time.Time) *Check {
	c := &Check{
		ID:        uuid.NewString(),
		MonitorID: monitorID,
		Status:    validate.DeriveStatus(issues),
		Issues:    issues,
		Meta:      meta,
		CheckedAt: at,
	}
	if meta != nil {
		c.Title = meta.Title
		c.Description = meta.Description
		c.Image = meta.Image
		c.ImageStatus = meta.ImageStatus
	}
	return c
}

// Alert records an alert-worthy change for a monitor
type Alert struct {
	ID             string       `json:"id"`
	MonitorID      string       `json:"monitorId"`
	CheckID        string       `json:"checkId,omitempty"`
	Type           changes.Type `json:"type"`
	Message        string       `json:"message"`
	PreviousValue  *string      `json:"previousValue"`
	CurrentValue   *string      `json:"currentValue"`
	Acknowledged   bool         `json:"acknowledged"`
	AcknowledgedAt *time.Time   `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func newAlert(monitorID, checkID string, change changes.Change, at time.Time) *Alert {
	return &Alert{
		ID:            uuid.NewString(),
		MonitorID:     monitorID,
		CheckID:       checkID,
		Type:          change.Type,
		Message:       change.Message,
		PreviousValue: change.PreviousValue,
		CurrentValue:  change.CurrentValue,
		CreatedAt:     at,
	}
}
