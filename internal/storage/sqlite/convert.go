package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/opengraph"
)

// Unlimited LIMIT for SQLite
const noLimit = -1

func sqlLimit(limit int) int {
	if limit <= 0 {
		return noLimit
	}
	return limit
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func encodeImageStatus(status *opengraph.ImageStatus) (string, error) {
	if status == nil {
		return "", nil
	}
	data, err := json.Marshal(status)
	return string(data), err
}

func decodeImageStatus(s string) (*opengraph.ImageStatus, error) {
	if s == "" {
		return nil, nil
	}
	var status opengraph.ImageStatus
	if err := json.Unmarshal([]byte(s), &status); err != nil {
		return nil, err
	}
	return &status, nil
}
