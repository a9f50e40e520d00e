// Package memory is an ephemeral monitor.Store used when no durable
// datastore is configured, and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// Store keeps everything in maps guarded by a single RWMutex. Records are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	monitors map[string]*monitor.Monitor
	checks   map[string][]monitor.Check
	alerts   map[string]*monitor.Alert
	seq      int64
	alertSeq map[string]int64
	closed   bool
}

// New returns an empty store
func New() *Store {
	return &Store{
		monitors: make(map[string]*monitor.Monitor),
		checks:   make(map[string][]monitor.Check),
		alerts:   make(map[string]*monitor.Alert),
		alertSeq: make(map[string]int64),
	}
}

func (s *Store) ensureOpen() error {
	if s.closed {
		return fmt.Errorf("%w: memory store is closed", monitor.ErrUnavailable)
	}
	return nil
}

func copyMonitor(m *monitor.Monitor) *monitor.Monitor {
	c := *m
	if m.LastCheckedAt != nil {
		t := *m.LastCheckedAt
		c.LastCheckedAt = &t
	}
	if m.LastSnapshot != nil {
		snap := *m.LastSnapshot
		if snap.ImageStatus != nil {
			status := *snap.ImageStatus
			snap.ImageStatus = &status
		}
		c.LastSnapshot = &snap
	}
	return &c
}

// CreateMonitor stores m, rejecting a second monitor for the same user and URL
func (s *Store) CreateMonitor(_ context.Context, m *monitor.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, ok := s.monitors[m.ID]; ok {
		return fmt.Errorf("monitor %s: %w", m.ID, monitor.ErrDuplicate)
	}
	for _, existing := range s.monitors {
		if existing.UserID == m.UserID && existing.URL == m.URL {
			return fmt.Errorf("monitor for %s: %w", m.URL, monitor.ErrDuplicate)
		}
	}
	s.monitors[m.ID] = copyMonitor(m)
	return nil
}

// GetMonitor returns the monitor with id
func (s *Store) GetMonitor(_ context.Context, id string) (*monitor.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	m, ok := s.monitors[id]
	if !ok {
		return nil, fmt.Errorf("monitor %s: %w", id, monitor.ErrNotFound)
	}
	return copyMonitor(m), nil
}

// GetMonitorByURL returns the user's monitor for url
func (s *Store) GetMonitorByURL(_ context.Context, userID, url string) (*monitor.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	for _, m := range s.monitors {
		if m.UserID == userID && m.URL == url {
			return copyMonitor(m), nil
		}
	}
	return nil, fmt.Errorf("monitor for %s: %w", url, monitor.ErrNotFound)
}

// ListMonitors returns monitors sorted by creation time, newest first
func (s *Store) ListMonitors(_ context.Context, userID string) ([]monitor.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	out := make([]monitor.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		if userID == "" || m.UserID == userID {
			out = append(out, *copyMonitor(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateMonitorState records a check outcome
func (s *Store) UpdateMonitorState(_ context.Context, id string, status validate.Status, checkedAt time.Time, snapshot *opengraph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	m, ok := s.monitors[id]
	if !ok {
		return fmt.Errorf("monitor %s: %w", id, monitor.ErrNotFound)
	}
	m.Status = status
	m.LastCheckedAt = &checkedAt
	m.UpdatedAt = checkedAt
	if snapshot != nil {
		m.LastSnapshot = copyMonitor(&monitor.Monitor{LastSnapshot: snapshot}).LastSnapshot
	}
	return nil
}

// UpdateMonitorSettings replaces the user editable fields of a monitor
func (s *Store) UpdateMonitorSettings(_ context.Context, updated *monitor.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	m, ok := s.monitors[updated.ID]
	if !ok {
		return fmt.Errorf("monitor %s: %w", updated.ID, monitor.ErrNotFound)
	}
	m.Nickname = updated.Nickname
	m.CheckFrequency = updated.CheckFrequency
	m.AlertsEnabled = updated.AlertsEnabled
	m.NotifyTo = updated.NotifyTo
	m.UpdatedAt = updated.UpdatedAt
	return nil
}

// DeleteMonitor removes a monitor with its checks and alerts
func (s *Store) DeleteMonitor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, ok := s.monitors[id]; !ok {
		return fmt.Errorf("monitor %s: %w", id, monitor.ErrNotFound)
	}
	delete(s.monitors, id)
	delete(s.checks, id)
	for alertID, a := range s.alerts {
		if a.MonitorID == id {
			delete(s.alerts, alertID)
			delete(s.alertSeq, alertID)
		}
	}
	return nil
}

// CreateCheck appends a check to its monitor's history
func (s *Store) CreateCheck(_ context.Context, c *monitor.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, ok := s.monitors[c.MonitorID]; !ok {
		return fmt.Errorf("monitor %s: %w", c.MonitorID, monitor.ErrNotFound)
	}
	check := *c
	check.Issues = append([]validate.Issue(nil), c.Issues...)
	s.checks[c.MonitorID] = append(s.checks[c.MonitorID], check)
	return nil
}

// ListChecks returns the most recent checks first
func (s *Store) ListChecks(_ context.Context, monitorID string, limit int) ([]monitor.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	history := s.checks[monitorID]
	out := make([]monitor.Check, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, history[i])
	}
	return out, nil
}

// CreateAlert stores a new alert
func (s *Store) CreateAlert(_ context.Context, a *monitor.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, ok := s.monitors[a.MonitorID]; !ok {
		return fmt.Errorf("monitor %s: %w", a.MonitorID, monitor.ErrNotFound)
	}
	if _, ok := s.alerts[a.ID]; ok {
		return fmt.Errorf("alert %s: %w", a.ID, monitor.ErrDuplicate)
	}
	alert := *a
	s.alerts[a.ID] = &alert
	s.seq++
	s.alertSeq[a.ID] = s.seq
	return nil
}

// GetAlert returns the alert with id
func (s *Store) GetAlert(_ context.Context, id string) (*monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, monitor.ErrNotFound)
	}
	alert := *a
	return &alert, nil
}

// ListAlerts returns a monitor's alerts, newest first
func (s *Store) ListAlerts(_ context.Context, monitorID string, acknowledged *bool, limit int) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	out := make([]monitor.Alert, 0)
	for _, a := range s.alerts {
		if a.MonitorID != monitorID {
			continue
		}
		if acknowledged != nil && a.Acknowledged != *acknowledged {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.alertSeq[out[i].ID] > s.alertSeq[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AcknowledgeAlert marks an alert as seen
func (s *Store) AcknowledgeAlert(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, monitor.ErrNotFound)
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	return nil
}

// DeleteAlert removes a single alert
func (s *Store) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, ok := s.alerts[id]; !ok {
		return fmt.Errorf("alert %s: %w", id, monitor.ErrNotFound)
	}
	delete(s.alerts, id)
	delete(s.alertSeq, id)
	return nil
}

// Close makes every further call fail with monitor.ErrUnavailable
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ monitor.Store = (*Store)(nil)
