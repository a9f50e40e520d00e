package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// Storage sentinels. Implementations wrap them so callers can use errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("already exists")
	ErrUnavailable = errors.New("datastore unavailable")
)

// Store persists monitors, their checks and their alerts. List methods return
// the newest records first; a limit of 0 means no limit.
type Store interface {
	CreateMonitor(ctx context.Context, m *Monitor) error
	GetMonitor(ctx context.Context, id string) (*Monitor, error)
	GetMonitorByURL(ctx context.Context, userID, url string) (*Monitor, error)
	// ListMonitors returns every monitor when userID is empty
	ListMonitors(ctx context.Context, userID string) ([]Monitor, error)
	// UpdateMonitorState records the outcome of a check. A nil snapshot keeps
	// the stored one.
	UpdateMonitorState(ctx context.Context, id string, status validate.Status, checkedAt time.Time, snapshot *opengraph.Snapshot) error
	UpdateMonitorSettings(ctx context.Context, m *Monitor) error
	// DeleteMonitor removes the monitor together with its checks and alerts
	DeleteMonitor(ctx context.Context, id string) error

	CreateCheck(ctx context.Context, c *Check) error
	ListChecks(ctx context.Context, monitorID string, limit int) ([]Check, error)

	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	// ListAlerts filters on the acknowledged flag unless it is nil
	ListAlerts(ctx context.Context, monitorID string, acknowledged *bool, limit int) ([]Alert, error)
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error
	DeleteAlert(ctx context.Context, id string) error

	Close() error
}

// Locker serializes work on a single key. The returned function releases the
// lock and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notification is one alert delivery request
type Notification struct {
	Destination string
	Monitor     Monitor
	Check       Check
	Alert       Alert
}

// Notifier delivers notifications on a best-effort basis
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
