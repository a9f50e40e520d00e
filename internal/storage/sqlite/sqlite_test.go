package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lepinkainen/og-monitor/internal/storage/storagetest"
	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "monitors.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) monitor.Store { return openTestStore(t) })
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "monitors.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	m := monitor.NewMonitor("alice", "https://example.com/", monitor.FrequencyHourly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor() error = %v", err)
	}
	if got.CheckFrequency != monitor.FrequencyHourly || !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("GetMonitor() = %+v", got)
	}
}

func TestLegacyRowsDecode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	defer s.Close()

	m := monitor.NewMonitor("alice", "https://example.com/", monitor.FrequencyDaily, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}

	// Rows written before the versioned codec stored bare JSON
	db := s.db.DB()
	if _, err := db.ExecContext(ctx, `UPDATE monitors SET last_snapshot = ? WHERE id = ?`,
		`{"title":"Old","image":"https://example.com/a.png","imageStatus":{"valid":true,"contentType":"image/png"}}`, m.ID); err != nil {
		t.Fatalf("update error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO monitor_checks (id, monitor_id, status, issues, checked_at) VALUES (?, ?, ?, ?, ?)`,
		"legacy", m.ID, "warning", `[{"type":"warning","message":"Missing description","field":"description"}]`, time.Now().UnixNano()); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor() error = %v", err)
	}
	if got.LastSnapshot == nil || got.LastSnapshot.Title != "Old" || !got.LastSnapshot.ImageStatus.Valid {
		t.Errorf("LastSnapshot = %+v", got.LastSnapshot)
	}

	checks, err := s.ListChecks(ctx, m.ID, 0)
	if err != nil {
		t.Fatalf("ListChecks() error = %v", err)
	}
	if len(checks) != 1 || len(checks[0].Issues) != 1 || checks[0].Issues[0].Type != validate.SeverityWarning {
		t.Errorf("ListChecks() = %+v", checks)
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := s.ListMonitors(context.Background(), ""); !errors.Is(err, monitor.ErrUnavailable) {
		t.Errorf("ListMonitors() error = %v, want ErrUnavailable", err)
	}
	m := monitor.NewMonitor("alice", "https://example.com/", monitor.FrequencyDaily, time.Now())
	if err := s.CreateMonitor(context.Background(), m); !errors.Is(err, monitor.ErrUnavailable) {
		t.Errorf("CreateMonitor() error = %v, want ErrUnavailable", err)
	}
}

func TestCheckForUnknownMonitor(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	c := &monitor.Check{ID: "c1", MonitorID: "nope", Status: validate.StatusHealthy, CheckedAt: time.Now()}
	if err := s.CreateCheck(context.Background(), c); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("CreateCheck() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteMonitorWhileAnotherConnectionIsBusy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	defer s.Close()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := monitor.NewMonitor("alice", "https://example.com/", monitor.FrequencyDaily, at)
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor() error = %v", err)
	}
	c := &monitor.Check{ID: "c1", MonitorID: m.ID, Status: validate.StatusHealthy, CheckedAt: at}
	if err := s.CreateCheck(ctx, c); err != nil {
		t.Fatalf("CreateCheck() error = %v", err)
	}
	a := &monitor.Alert{ID: "a1", MonitorID: m.ID, CheckID: c.ID, Type: changes.ImageBroken, Message: changes.ImageBroken.Message(), CreatedAt: at}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}

	// An open result set pins one pooled connection, so the delete runs on another
	rows, err := s.db.DB().QueryContext(ctx, `SELECT id FROM monitors`)
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if err := s.DeleteMonitor(ctx, m.ID); err != nil {
		rows.Close()
		t.Fatalf("DeleteMonitor() error = %v", err)
	}
	rows.Close()

	if _, err := s.GetAlert(ctx, a.ID); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("GetAlert() after delete error = %v, want ErrNotFound", err)
	}
	var orphans int
	if err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM monitor_checks WHERE monitor_id = ?`, m.ID).Scan(&orphans); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d checks remain after DeleteMonitor", orphans)
	}
}

func TestForeignKeysOnSecondConnection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	defer s.Close()

	rows, err := s.db.DB().QueryContext(ctx, `SELECT id FROM monitors`)
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	defer rows.Close()

	c := &monitor.Check{ID: "c1", MonitorID: "nope", Status: validate.StatusHealthy, CheckedAt: time.Now()}
	if err := s.CreateCheck(ctx, c); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("CreateCheck() error = %v, want ErrNotFound", err)
	}
}
