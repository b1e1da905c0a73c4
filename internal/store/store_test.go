package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// createTarget makes a minimal existing database for Open to find.
func createTarget(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("creating target db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE tags (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return path
}

func TestOpen_ExistingDatabase(t *testing.T) {
	path := createTarget(t)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tags`).Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.db")

	_, err := Open(path)
	if err == nil {
		t.Fatal("Open() succeeded on a missing file")
	}

	// No empty database may be left behind.
	if _, statErr := Open(path); statErr == nil {
		t.Error("Open() created the target as a side effect")
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s, err := Open(createTarget(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO tags (id) VALUES ('kept')`)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tags WHERE id = 'kept'`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("committed row count = %d, want 1", count)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, err := Open(createTarget(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	sentinel := errors.New("rule failed")
	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO tags (id) VALUES ('discarded')`); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want wrapped sentinel", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tags`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("rows after rollback = %d, want 0", count)
	}
}

func TestOpen_ForeignKeysDisabled(t *testing.T) {
	s, err := Open(createTarget(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var enabled int
	if err := s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil {
		t.Fatalf("pragma query failed: %v", err)
	}
	if enabled != 0 {
		t.Error("foreign_keys pragma is on; repair requires it off")
	}
}
