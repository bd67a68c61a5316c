package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "manage.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		rel  string
		wal  bool
	}{
		{"file in existing dir", "manage.db", true},
		{"nested dirs created", filepath.Join("a", "b", "manage.db"), true},
		{"rollback journal", "plain.db", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.rel)
			db, err := Open(Config{Path: path, WALMode: tt.wal, BusyTimeout: 1})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // Test cleanup

			if db.Path() != path {
				t.Errorf("Path() = %q, want %q", db.Path(), path)
			}
			if err := db.HealthCheck(context.Background()); err != nil {
				t.Fatalf("HealthCheck() error = %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Errorf("database file missing: %v", err)
			}

			var mode string
			if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("reading journal_mode: %v", err)
			}
			if got := mode == "wal"; got != tt.wal {
				t.Errorf("journal_mode = %q, wal %v", mode, tt.wal)
			}
		})
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() = nil, want error")
	}
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("zero DB Close() = %v", err)
	}
}

func TestBeginTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	errAbort := errors.New("abort")
	insert := func(id string, fail error) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // No-op after commit
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (?)", id); err != nil {
			return err
		}
		if fail != nil {
			return fail
		}
		return tx.Commit()
	}

	if err := insert("kept", nil); err != nil {
		t.Fatalf("committed insert: %v", err)
	}
	if err := insert("dropped", errAbort); !errors.Is(err, errAbort) {
		t.Fatalf("aborted insert: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("counting: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}
