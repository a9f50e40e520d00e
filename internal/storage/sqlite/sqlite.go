// Package sqlite stores monitors in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/database"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		nickname TEXT NOT NULL DEFAULT '',
		check_frequency TEXT NOT NULL DEFAULT 'daily',
		alerts_enabled INTEGER NOT NULL DEFAULT 1,
		notify_to TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		last_checked_at INTEGER,
		last_snapshot TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (user_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS monitor_checks (
		id TEXT PRIMARY KEY,
		monitor_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		issues TEXT NOT NULL,
		snapshot TEXT,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		image_status TEXT,
		checked_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_checks_monitor ON monitor_checks(monitor_id, checked_at DESC)`,
	`CREATE TABLE IF NOT EXISTS monitor_alerts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		monitor_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		check_id TEXT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		previous_value TEXT,
		current_value TEXT,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_alerts_monitor ON monitor_alerts(monitor_id, created_at DESC)`,
}

const monitorColumns = `id, user_id, url, nickname, check_frequency, alerts_enabled, notify_to, status,
	last_checked_at, last_snapshot, created_at, updated_at`

const alertColumns = `id, monitor_id, check_id, type, message, previous_value, current_value,
	acknowledged, acknowledged_at, created_at`

// Store implements monitor.Store on pkg/database
type Store struct {
	db *database.Database
}

// Open opens the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := database.Open(ctx, database.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", monitor.ErrUnavailable, err)
	}
	s, err := New(ctx, db)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
		return nil, err
	}
	return s, nil
}

// New applies the schema to an open database
func New(ctx context.Context, db *database.Database) (*Store, error) {
	for _, stmt := range schema {
		if err := db.ExecuteSchema(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: %w", monitor.ErrUnavailable, err)
		}
	}
	slog.Debug("Monitor schema initialized", "path", db.Path())
	return &Store{db: db}, nil
}

func (s *Store) conn() (*sql.DB, error) {
	db := s.db.DB()
	if db == nil {
		return nil, fmt.Errorf("%w: database is closed", monitor.ErrUnavailable)
	}
	return db, nil
}

// write runs fn in a transaction, reporting a closed database as unavailable
func (s *Store) write(ctx context.Context, fn func(*sql.Tx) error) error {
	err := s.db.Transaction(ctx, fn)
	if errors.Is(err, database.ErrClosed) {
		return fmt.Errorf("%w: %w", monitor.ErrUnavailable, err)
	}
	return err
}

// CreateMonitor inserts m
func (s *Store) CreateMonitor(ctx context.Context, m *monitor.Monitor) error {
	snapshot, err := monitor.EncodeSnapshot(m.LastSnapshot)
	if err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO monitors (`+monitorColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.UserID, m.URL, m.Nickname, string(m.CheckFrequency), m.AlertsEnabled, m.NotifyTo,
			string(m.Status), nullTime(m.LastCheckedAt), nullString(snapshot), m.CreatedAt.UnixNano(), m.UpdatedAt.UnixNano())
		return translate(err, "monitor "+m.URL)
	})
}

// GetMonitor returns the monitor with id
func (s *Store) GetMonitor(ctx context.Context, id string) (*monitor.Monitor, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if err != nil {
		return nil, translate(err, "monitor "+id)
	}
	return m, nil
}

// GetMonitorByURL returns the user's monitor for url
func (s *Store) GetMonitorByURL(ctx context.Context, userID, url string) (*monitor.Monitor, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE user_id = ? AND url = ?`, userID, url)
	m, err := scanMonitor(row)
	if err != nil {
		return nil, translate(err, "monitor for "+url)
	}
	return m, nil
}

// ListMonitors returns monitors newest first
func (s *Store) ListMonitors(ctx context.Context, userID string) ([]monitor.Monitor, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + monitorColumns + ` FROM monitors`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "monitors")
	}
	defer rows.Close()

	monitors := make([]monitor.Monitor, 0)
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

// UpdateMonitorState records a check outcome. A nil snapshot keeps the stored one.
func (s *Store) UpdateMonitorState(ctx context.Context, id string, status validate.Status, checkedAt time.Time, snapshot *opengraph.Snapshot) error {
	encoded, err := monitor.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE monitors SET
				status = ?, last_checked_at = ?, updated_at = ?,
				last_snapshot = COALESCE(?, last_snapshot)
			WHERE id = ?`,
			string(status), checkedAt.UnixNano(), checkedAt.UnixNano(), nullString(encoded), id)
		if err != nil {
			return translate(err, "monitor "+id)
		}
		return requireRow(result, "monitor "+id)
	})
}

// UpdateMonitorSettings stores the user editable fields of m
func (s *Store) UpdateMonitorSettings(ctx context.Context, m *monitor.Monitor) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE monitors SET
				nickname = ?, check_frequency = ?, alerts_enabled = ?, notify_to = ?, updated_at = ?
			WHERE id = ?`,
			m.Nickname, string(m.CheckFrequency), m.AlertsEnabled, m.NotifyTo, m.UpdatedAt.UnixNano(), m.ID)
		if err != nil {
			return translate(err, "monitor "+m.ID)
		}
		return requireRow(result, "monitor "+m.ID)
	})
}

// DeleteMonitor removes a monitor together with its checks and alerts
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		// Children go first so the delete does not depend on ON DELETE CASCADE
		for _, stmt := range []string{
			`DELETE FROM monitor_alerts WHERE monitor_id = ?`,
			`DELETE FROM monitor_checks WHERE monitor_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return translate(err, "monitor "+id)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
		if err != nil {
			return translate(err, "monitor "+id)
		}
		return requireRow(result, "monitor "+id)
	})
}

// CreateCheck inserts c with its issues and metadata serialized through the codec
func (s *Store) CreateCheck(ctx context.Context, c *monitor.Check) error {
	issues, err := monitor.EncodeIssues(c.Issues)
	if err != nil {
		return err
	}
	meta, err := monitor.EncodeMeta(c.Meta)
	if err != nil {
		return err
	}
	imageStatus, err := encodeImageStatus(c.ImageStatus)
	if err != nil {
		return err
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO monitor_checks
				(id, monitor_id, status, issues, snapshot, title, description, image, image_status, checked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.MonitorID, string(c.Status), issues, nullString(meta), c.Title, c.Description, c.Image,
			nullString(imageStatus), c.CheckedAt.UnixNano())
		return translate(err, "check "+c.ID)
	})
}

// ListChecks returns the monitor's checks, newest first
func (s *Store) ListChecks(ctx context.Context, monitorID string, limit int) ([]monitor.Check, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, monitor_id, status, issues, snapshot, title, description, image, image_status, checked_at
		FROM monitor_checks WHERE monitor_id = ? ORDER BY checked_at DESC, rowid DESC LIMIT ?`, monitorID, sqlLimit(limit))
	if err != nil {
		return nil, translate(err, "checks")
	}
	defer rows.Close()

	checks := make([]monitor.Check, 0)
	for rows.Next() {
		var (
			c                 monitor.Check
			status, issues    string
			meta, imageStatus sql.NullString
			checkedAt         int64
		)
		if err := rows.Scan(&c.ID, &c.MonitorID, &status, &issues, &meta, &c.Title, &c.Description, &c.Image, &imageStatus, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		c.Status = validate.Status(status)
		c.CheckedAt = fromNanos(checkedAt)
		if c.Issues, err = monitor.DecodeIssues(issues); err != nil {
			return nil, err
		}
		if c.Meta, err = monitor.DecodeMeta(meta.String); err != nil {
			return nil, err
		}
		if c.ImageStatus, err = decodeImageStatus(imageStatus.String); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// CreateAlert inserts a
func (s *Store) CreateAlert(ctx context.Context, a *monitor.Alert) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO monitor_alerts (`+alertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MonitorID, nullString(a.CheckID), string(a.Type), a.Message, a.PreviousValue, a.CurrentValue,
			a.Acknowledged, nullTime(a.AcknowledgedAt), a.CreatedAt.UnixNano())
		return translate(err, "alert "+a.ID)
	})
}

// GetAlert returns the alert with id
func (s *Store) GetAlert(ctx context.Context, id string) (*monitor.Alert, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	a, err := scanAlert(db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM monitor_alerts WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err, "alert "+id)
	}
	return a, nil
}

// ListAlerts returns a monitor's alerts newest first, optionally filtered on acknowledgement
func (s *Store) ListAlerts(ctx context.Context, monitorID string, acknowledged *bool, limit int) ([]monitor.Alert, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + alertColumns + ` FROM monitor_alerts WHERE monitor_id = ?`
	args := []any{monitorID}
	if acknowledged != nil {
		query += ` AND acknowledged = ?`
		args = append(args, *acknowledged)
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ?`
	args = append(args, sqlLimit(limit))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "alerts")
	}
	defer rows.Close()

	alerts := make([]monitor.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as seen at the given time
func (s *Store) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE monitor_alerts SET acknowledged = 1, acknowledged_at = ? WHERE id = ?`, at.UnixNano(), id)
		if err != nil {
			return translate(err, "alert "+id)
		}
		return requireRow(result, "alert "+id)
	})
}

// DeleteAlert removes one alert
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM monitor_alerts WHERE id = ?`, id)
		if err != nil {
			return translate(err, "alert "+id)
		}
		return requireRow(result, "alert "+id)
	})
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row scanner) (*monitor.Monitor, error) {
	var (
		m                    monitor.Monitor
		frequency, status    string
		lastChecked          sql.NullInt64
		snapshot             sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.URL, &m.Nickname, &frequency, &m.AlertsEnabled, &m.NotifyTo, &status,
		&lastChecked, &snapshot, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.CheckFrequency = monitor.Frequency(frequency)
	m.Status = validate.Status(status)
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	if lastChecked.Valid {
		t := fromNanos(lastChecked.Int64)
		m.LastCheckedAt = &t
	}

	var err error
	if m.LastSnapshot, err = monitor.DecodeSnapshot(snapshot.String); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanAlert(row scanner) (*monitor.Alert, error) {
	var (
		a              monitor.Alert
		checkID        sql.NullString
		typ            string
		prev, cur      sql.NullString
		acknowledgedAt sql.NullInt64
		createdAt      int64
	)
	if err := row.Scan(&a.ID, &a.MonitorID, &checkID, &typ, &a.Message, &prev, &cur, &a.Acknowledged, &acknowledgedAt, &createdAt); err != nil {
		return nil, err
	}
	a.CheckID = checkID.String
	a.Type = changes.Type(typ)
	a.PreviousValue = stringPtr(prev)
	a.CurrentValue = stringPtr(cur)
	a.CreatedAt = fromNanos(createdAt)
	if acknowledgedAt.Valid {
		t := fromNanos(acknowledgedAt.Int64)
		a.AcknowledgedAt = &t
	}
	return &a, nil
}

// translate maps driver errors onto the monitor sentinels
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(err.Error(), "UNIQUE constraint failed"):
			return fmt.Errorf("%s: %w", what, monitor.ErrDuplicate)
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
			return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
		}
	}
	if errors.Is(err, database.ErrClosed) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w: %w", what, monitor.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
	}
	return nil
}
