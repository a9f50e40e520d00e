// Package postgres stores monitors in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lepinkainen/og-monitor/pkg/changes"
	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/opengraph"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// Postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitors (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	url             TEXT NOT NULL,
	nickname        TEXT NOT NULL DEFAULT '',
	check_frequency TEXT NOT NULL DEFAULT 'daily',
	alerts_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
	notify_to       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	last_checked_at TIMESTAMPTZ,
	last_snapshot   JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS monitor_checks (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	monitor_id   TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	status       TEXT NOT NULL,
	issues       JSONB NOT NULL,
	snapshot     JSONB,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	image        TEXT NOT NULL DEFAULT '',
	image_status JSONB,
	checked_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_checks_monitor ON monitor_checks (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS monitor_alerts (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY,
	monitor_id      TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	check_id        TEXT,
	type            TEXT NOT NULL,
	message         TEXT NOT NULL,
	previous_value  TEXT,
	current_value   TEXT,
	acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
	acknowledged_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_alerts_monitor ON monitor_alerts (monitor_id, created_at DESC);
`

const monitorColumns = `id, user_id, url, nickname, check_frequency, alerts_enabled, notify_to, status,
	last_checked_at, last_snapshot::text, created_at, updated_at`

const alertColumns = `id, monitor_id, check_id, type, message, previous_value, current_value,
	acknowledged, acknowledged_at, created_at`

// Store implements monitor.Store on PostgreSQL
type Store struct {
	db *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies the schema
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is not configured", monitor.ErrUnavailable)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create connection pool: %w", monitor.ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: unable to ping database: %w", monitor.ErrUnavailable, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: pool}, nil
}

// Close closes the pool
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// CreateMonitor inserts m
func (s *Store) CreateMonitor(ctx context.Context, m *monitor.Monitor) error {
	snapshot, err := monitor.EncodeSnapshot(m.LastSnapshot)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO monitors (id, user_id, url, nickname, check_frequency, alerts_enabled,
			notify_to, status, last_checked_at, last_snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12)`,
		m.ID, m.UserID, m.URL, m.Nickname, string(m.CheckFrequency), m.AlertsEnabled, m.NotifyTo, string(m.Status),
		m.LastCheckedAt, optional(snapshot), m.CreatedAt, m.UpdatedAt)
	return translate(err, "monitor "+m.URL)
}

// GetMonitor returns the monitor with id
func (s *Store) GetMonitor(ctx context.Context, id string) (*monitor.Monitor, error) {
	m, err := scanMonitor(s.db.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "monitor "+id)
	}
	return m, nil
}

// GetMonitorByURL returns the user's monitor for url
func (s *Store) GetMonitorByURL(ctx context.Context, userID, url string) (*monitor.Monitor, error) {
	m, err := scanMonitor(s.db.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE user_id = $1 AND url = $2`, userID, url))
	if err != nil {
		return nil, translate(err, "monitor for "+url)
	}
	return m, nil
}

// ListMonitors returns monitors newest first
func (s *Store) ListMonitors(ctx context.Context, userID string) ([]monitor.Monitor, error) {
	rows, err := s.db.Query(ctx, `SELECT `+monitorColumns+` FROM monitors
		WHERE $1 = '' OR user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, translate(err, "monitors")
	}
	defer rows.Close()

	monitors := make([]monitor.Monitor, 0)
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, translate(rows.Err(), "monitors")
}

// UpdateMonitorState records a check outcome. A nil snapshot keeps the stored one.
func (s *Store) UpdateMonitorState(ctx context.Context, id string, status validate.Status, checkedAt time.Time, snapshot *opengraph.Snapshot) error {
	encoded, err := monitor.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE monitors SET
			status = $2, last_checked_at = $3, updated_at = $3,
			last_snapshot = COALESCE($4::jsonb, last_snapshot)
		WHERE id = $1`, id, string(status), checkedAt, optional(encoded))
	if err != nil {
		return translate(err, "monitor "+id)
	}
	return requireRow(tag, "monitor "+id)
}

// UpdateMonitorSettings stores the user editable fields of m
func (s *Store) UpdateMonitorSettings(ctx context.Context, m *monitor.Monitor) error {
	tag, err := s.db.Exec(ctx, `UPDATE monitors SET
			nickname = $2, check_frequency = $3, alerts_enabled = $4, notify_to = $5, updated_at = $6
		WHERE id = $1`, m.ID, m.Nickname, string(m.CheckFrequency), m.AlertsEnabled, m.NotifyTo, m.UpdatedAt)
	if err != nil {
		return translate(err, "monitor "+m.ID)
	}
	return requireRow(tag, "monitor "+m.ID)
}

// DeleteMonitor removes a monitor; checks and alerts follow through ON DELETE CASCADE
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return translate(err, "monitor "+id)
	}
	return requireRow(tag, "monitor "+id)
}

// CreateCheck inserts c
func (s *Store) CreateCheck(ctx context.Context, c *monitor.Check) error {
	issues, err := monitor.EncodeIssues(c.Issues)
	if err != nil {
		return err
	}
	meta, err := monitor.EncodeMeta(c.Meta)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `INSERT INTO monitor_checks
			(id, monitor_id, status, issues, snapshot, title, description, image, image_status, checked_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10)`,
		c.ID, c.MonitorID, string(c.Status), issues, optional(meta), c.Title, c.Description, c.Image, c.ImageStatus, c.CheckedAt)
	return translate(err, "check "+c.ID)
}

// ListChecks returns the monitor's checks, newest first
func (s *Store) ListChecks(ctx context.Context, monitorID string, limit int) ([]monitor.Check, error) {
	rows, err := s.db.Query(ctx, `SELECT id, monitor_id, status, issues::text, snapshot::text, title, description, image,
			image_status, checked_at
		FROM monitor_checks WHERE monitor_id = $1 ORDER BY checked_at DESC, seq DESC LIMIT $2`, monitorID, sqlLimit(limit))
	if err != nil {
		return nil, translate(err, "checks")
	}
	defer rows.Close()

	checks := make([]monitor.Check, 0)
	for rows.Next() {
		var (
			c      monitor.Check
			status string
			issues string
			meta   *string
		)
		if err := rows.Scan(&c.ID, &c.MonitorID, &status, &issues, &meta, &c.Title, &c.Description, &c.Image,
			&c.ImageStatus, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		c.Status = validate.Status(status)
		if c.Issues, err = monitor.DecodeIssues(issues); err != nil {
			return nil, err
		}
		if meta != nil {
			if c.Meta, err = monitor.DecodeMeta(*meta); err != nil {
				return nil, err
			}
		}
		checks = append(checks, c)
	}
	return checks, translate(rows.Err(), "checks")
}

// CreateAlert inserts a
func (s *Store) CreateAlert(ctx context.Context, a *monitor.Alert) error {
	_, err := s.db.Exec(ctx, `INSERT INTO monitor_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.MonitorID, optional(a.CheckID), string(a.Type), a.Message, a.PreviousValue, a.CurrentValue,
		a.Acknowledged, a.AcknowledgedAt, a.CreatedAt)
	return translate(err, "alert "+a.ID)
}

// GetAlert returns the alert with id
func (s *Store) GetAlert(ctx context.Context, id string) (*monitor.Alert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM monitor_alerts WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "alert "+id)
	}
	return a, nil
}

// ListAlerts returns a monitor's alerts newest first, optionally filtered on acknowledgement
func (s *Store) ListAlerts(ctx context.Context, monitorID string, acknowledged *bool, limit int) ([]monitor.Alert, error) {
	rows, err := s.db.Query(ctx, `SELECT `+alertColumns+` FROM monitor_alerts
		WHERE monitor_id = $1 AND ($2::boolean IS NULL OR acknowledged = $2)
		ORDER BY created_at DESC, seq DESC LIMIT $3`, monitorID, acknowledged, sqlLimit(limit))
	if err != nil {
		return nil, translate(err, "alerts")
	}
	defer rows.Close()

	alerts := make([]monitor.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, translate(rows.Err(), "alerts")
}

// AcknowledgeAlert marks an alert as seen at the given time
func (s *Store) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE monitor_alerts SET acknowledged = TRUE, acknowledged_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err, "alert "+id)
	}
	return requireRow(tag, "alert "+id)
}

// DeleteAlert removes one alert
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM monitor_alerts WHERE id = $1`, id)
	if err != nil {
		return translate(err, "alert "+id)
	}
	return requireRow(tag, "alert "+id)
}

func scanMonitor(row pgx.Row) (*monitor.Monitor, error) {
	var (
		m                 monitor.Monitor
		frequency, status string
		snapshot          *string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.URL, &m.Nickname, &frequency, &m.AlertsEnabled, &m.NotifyTo, &status,
		&m.LastCheckedAt, &snapshot, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.CheckFrequency = monitor.Frequency(frequency)
	m.Status = validate.Status(status)
	if snapshot != nil {
		var err error
		if m.LastSnapshot, err = monitor.DecodeSnapshot(*snapshot); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func scanAlert(row pgx.Row) (*monitor.Alert, error) {
	var (
		a       monitor.Alert
		checkID *string
		typ     string
	)
	if err := row.Scan(&a.ID, &a.MonitorID, &checkID, &typ, &a.Message, &a.PreviousValue, &a.CurrentValue,
		&a.Acknowledged, &a.AcknowledgedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = changes.Type(typ)
	if checkID != nil {
		a.CheckID = *checkID
	}
	return &a, nil
}

// translate maps pgx errors onto the monitor sentinels. Connection level
// failures are reported as unavailable.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", what, monitor.ErrDuplicate)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", what, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%s: %w: %w", what, monitor.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func requireRow(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, monitor.ErrNotFound)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sqlLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

var _ monitor.Store = (*Store)(nil)
