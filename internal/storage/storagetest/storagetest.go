// Package storagetest holds the behaviour every monitor.Store must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises newStore against the monitor.Store contract. newStore must
// return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) monitor.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s monitor.Store)
	}{
		{"monitor lifecycle", testMonitorLifecycle},
		{"duplicate user and url", testDuplicate},
		{"state update keeps snapshot when nil", testStateUpdate},
		{"checks newest first", testChecks},
		{"alerts filter and acknowledge", testAlerts},
		{"delete cascades", testDeleteCascades},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func newMonitor(userID, url string, offset time.Duration) *monitor.Monitor {
	m := monitor.NewMonitor(userID, url, monitor.FrequencyDaily, base.Add(offset))
	m.Nickname = "home"
	return m
}

func testMonitorLifecycle(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	first := newMonitor("alice", "https://example.com/", 0)
	second := newMonitor("alice", "https://example.com/blog", time.Minute)
	other := newMonitor("bob", "https://example.com/", 2*time.Minute)
	for _, m := range []*monitor.Monitor{first, second, other} {
		if err := s.CreateMonitor(ctx, m); err != nil {
			t.Fatalf("CreateMonitor(%s) error = %v", m.URL, err)
		}
	}

	got, err := s.GetMonitor(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetMonitor() error = %v", err)
	}
	if got.URL != first.URL || got.Nickname != "home" || !got.AlertsEnabled || got.Status != "" || got.LastCheckedAt != nil {
		t.Errorf("GetMonitor() = %+v", got)
	}

	byURL, err := s.GetMonitorByURL(ctx, "bob", "https://example.com/")
	if err != nil || byURL.ID != other.ID {
		t.Errorf("GetMonitorByURL() = %v, %v; want %s", byURL, err, other.ID)
	}

	if _, err := s.GetMonitor(ctx, "missing"); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("GetMonitor(missing) error = %v, want ErrNotFound", err)
	}

	list, err := s.ListMonitors(ctx, "alice")
	if err != nil {
		t.Fatalf("ListMonitors() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("ListMonitors(alice) = %d monitors, first %q; want 2 newest first", len(list), list[0].ID)
	}

	all, err := s.ListMonitors(ctx, "")
	if err != nil || len(all) != 3 {
		t.Errorf("ListMonitors(\"\") = %d, %v; want 3", len(all), err)
	}

	first.Nickname = "renamed"
	first.CheckFrequency = monitor.FrequencyHourly
	first.AlertsEnabled = false
	first.NotifyTo = "ops@example.com"
	first.UpdatedAt = base.Add(time.Hour)
	if err := s.UpdateMonitorSettings(ctx, first); err != nil {
		t.Fatalf("UpdateMonitorSettings() error = %v", err)
	}
	got, _ = s.GetMonitor(ctx, first.ID)
	if got.Nickname != "renamed" || got.CheckFrequency != monitor.FrequencyHourly || got.AlertsEnabled || got.NotifyTo != "ops@example.com" {
		t.Errorf("settings not updated: %+v", got)
	}
}

func testDuplicate(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	if err := s.CreateMonitor(ctx, newMonitor("alice", "https://example.com/", 0)); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}
	err := s.CreateMonitor(ctx, newMonitor("alice", "https://example.com/", time.Second))
	if !errors.Is(err, monitor.ErrDuplicate) {
		t.Errorf("second CreateMonitor() error = %v, want ErrDuplicate", err)
	}
}

func testStateUpdate(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	m := newMonitor("alice", "https://example.com/", 0)
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}

	valid := opengraph.ValidImage("image/png")
	snap := &opengraph.Snapshot{Title: "T", Image: "https://example.com/a.png", ImageStatus: &valid}
	checked := base.Add(time.Hour)
	if err := s.UpdateMonitorState(ctx, m.ID, validate.StatusHealthy, checked, snap); err != nil {
		t.Fatalf("UpdateMonitorState() error = %v", err)
	}

	later := checked.Add(time.Hour)
	if err := s.UpdateMonitorState(ctx, m.ID, validate.StatusBroken, later, nil); err != nil {
		t.Fatalf("UpdateMonitorState(nil) error = %v", err)
	}

	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor() error = %v", err)
	}
	if got.Status != validate.StatusBroken {
		t.Errorf("Status = %q, want broken", got.Status)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(later) {
		t.Errorf("LastCheckedAt = %v, want %v", got.LastCheckedAt, later)
	}
	if got.LastSnapshot == nil || got.LastSnapshot.Title != "T" || got.LastSnapshot.ImageStatus == nil || !got.LastSnapshot.ImageStatus.Valid {
		t.Errorf("LastSnapshot = %+v, want the earlier snapshot kept", got.LastSnapshot)
	}

	if err := s.UpdateMonitorState(ctx, "missing", validate.StatusHealthy, later, nil); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("UpdateMonitorState(missing) error = %v, want ErrNotFound", err)
	}
}

func testChecks(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	m := newMonitor("alice", "https://example.com/", 0)
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}

	meta := &opengraph.MetaData{URL: m.URL, Title: "Example", Image: "https://example.com/a.png"}
	issues := []validate.Issue{{Type: validate.SeverityWarning, Message: "Missing description", Field: validate.FieldDescription}}
	for i := range 3 {
		c := &monitor.Check{
			ID:        m.ID + "-check-" + string(rune('a'+i)),
			MonitorID: m.ID,
			Status:    validate.StatusWarning,
			Issues:    issues,
			Meta:      meta,
			Title:     meta.Title,
			Image:     meta.Image,
			CheckedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.CreateCheck(ctx, c); err != nil {
			t.Fatalf("CreateCheck() error = %v", err)
		}
	}

	checks, err := s.ListChecks(ctx, m.ID, 2)
	if err != nil {
		t.Fatalf("ListChecks() error = %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("ListChecks(limit 2) = %d checks", len(checks))
	}
	if !checks[0].CheckedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first check at %v, want newest", checks[0].CheckedAt)
	}
	if len(checks[0].Issues) != 1 || checks[0].Issues[0].Message != "Missing description" {
		t.Errorf("Issues = %+v", checks[0].Issues)
	}
	if checks[0].Meta == nil || checks[0].Meta.Title != "Example" {
		t.Errorf("Meta = %+v", checks[0].Meta)
	}

	all, _ := s.ListChecks(ctx, m.ID, 0)
	if len(all) != 3 {
		t.Errorf("ListChecks(no limit) = %d, want 3", len(all))
	}
}

func testAlerts(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	m := newMonitor("alice", "https://example.com/", 0)
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}

	prev := "Old"
	types := []changes.Type{changes.TitleChanged, changes.ImageBroken, changes.TagsRemoved}
	ids := make([]string, 0, len(types))
	for i, typ := range types {
		a := &monitor.Alert{
			ID:            m.ID + "-alert-" + string(typ),
			MonitorID:     m.ID,
			Type:          typ,
			Message:       typ.Message(),
			PreviousValue: &prev,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert() error = %v", err)
		}
		ids = append(ids, a.ID)
	}

	ackAt := base.Add(time.Hour)
	if err := s.AcknowledgeAlert(ctx, ids[1], ackAt); err != nil {
		t.Fatalf("AcknowledgeAlert() error = %v", err)
	}

	got, err := s.GetAlert(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if !got.Acknowledged || got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(ackAt) {
		t.Errorf("acknowledged alert = %+v", got)
	}
	if got.PreviousValue == nil || *got.PreviousValue != "Old" || got.CurrentValue != nil {
		t.Errorf("values = %v -> %v", got.PreviousValue, got.CurrentValue)
	}

	unacked := false
	open, err := s.ListAlerts(ctx, m.ID, &unacked, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(open) != 2 || open[0].Type != changes.TagsRemoved {
		t.Errorf("unacknowledged alerts = %+v", open)
	}

	all, _ := s.ListAlerts(ctx, m.ID, nil, 1)
	if len(all) != 1 || all[0].Type != changes.TagsRemoved {
		t.Errorf("ListAlerts(limit 1) = %+v", all)
	}

	if err := s.DeleteAlert(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteAlert() error = %v", err)
	}
	if _, err := s.GetAlert(ctx, ids[0]); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("GetAlert(deleted) error = %v", err)
	}
	if err := s.AcknowledgeAlert(ctx, "missing", ackAt); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("AcknowledgeAlert(missing) error = %v", err)
	}
}

func testDeleteCascades(t *testing.T, s monitor.Store) {
	ctx := context.Background()
	m := newMonitor("alice", "https://example.com/", 0)
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}
	check := &monitor.Check{ID: m.ID + "-c", MonitorID: m.ID, Status: validate.StatusBroken, Issues: []validate.Issue{}, CheckedAt: base}
	if err := s.CreateCheck(ctx, check); err != nil {
		t.Fatalf("CreateCheck() error = %v", err)
	}
	alert := &monitor.Alert{ID: m.ID + "-a", MonitorID: m.ID, CheckID: check.ID, Type: changes.StatusError, Message: changes.StatusError.Message(), CreatedAt: base}
	if err := s.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}

	if err := s.DeleteMonitor(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMonitor() error = %v", err)
	}
	if _, err := s.GetMonitor(ctx, m.ID); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("GetMonitor(deleted) error = %v", err)
	}
	if _, err := s.GetAlert(ctx, alert.ID); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("alert survived monitor deletion: %v", err)
	}
	checks, err := s.ListChecks(ctx, m.ID, 0)
	if err != nil || len(checks) != 0 {
		t.Errorf("ListChecks(deleted) = %d, %v", len(checks), err)
	}
	if err := s.DeleteMonitor(ctx, m.ID); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("second DeleteMonitor() error = %v", err)
	}
}
