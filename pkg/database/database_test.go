package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestPragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DefaultConfig(filepath.Join(t.TempDir(), "pragmas.db")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	// Hold several connections at once so the pool has to open new ones
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		conn, err := db.DB().Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	for i, conn := range conns {
		var foreignKeys, busyTimeout int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("conn %d: foreign_keys error = %v", i, err)
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
			t.Fatalf("conn %d: busy_timeout error = %v", i, err)
		}
		if foreignKeys != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, foreignKeys)
		}
		if busyTimeout != 5000 {
			t.Errorf("conn %d: busy_timeout = %d, want 5000", i, busyTimeout)
		}
	}
}

func TestDSN(t *testing.T) {
	got := dsn(DefaultConfig("/tmp/x.db"))
	want := "/tmp/x.db?_pragma=busy_timeout%285000%29&_pragma=foreign_keys%281%29&_pragma=synchronous%28NORMAL%29&_pragma=temp_store%28MEMORY%29"
	if got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}
}
