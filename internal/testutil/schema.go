// Package testutil provides the shared database fixture for repair tests.
//
// The fixture mirrors the shape of the schema the builtin ruleset targets:
// entity tables with numeric created/archived timestamp columns (archived
// nullable), a tags lookup table, and the three tag association tables.
// Tests seed it with deliberately broken rows and run repairs against it.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaStatements returns the DDL for the fixture database, one statement
// per table. Foreign keys are declared but never enforced during repair;
// they document the referential expectations the orphan and backfill rules
// restore.
func SchemaStatements() []string {
	return []string{
		`CREATE TABLE categories (
			id       TEXT PRIMARY KEY,
			created  INTEGER NOT NULL,
			archived INTEGER
		)`,
		`CREATE TABLE comments (
			id       TEXT PRIMARY KEY,
			created  INTEGER NOT NULL,
			archived INTEGER
		)`,
		`CREATE TABLE entries (
			id       TEXT NOT NULL,
			version  INTEGER NOT NULL,
			title    TEXT,
			created  INTEGER NOT NULL,
			archived INTEGER,
			PRIMARY KEY (id, version)
		)`,
		`CREATE TABLE events (
			id       TEXT PRIMARY KEY,
			title    TEXT,
			created  INTEGER NOT NULL,
			archived INTEGER
		)`,
		`CREATE TABLE ratings (
			id       TEXT PRIMARY KEY,
			created  INTEGER NOT NULL,
			archived INTEGER
		)`,
		`CREATE TABLE organizations (
			id   TEXT PRIMARY KEY,
			name TEXT
		)`,
		`CREATE TABLE tags (
			id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE entry_tag_relations (
			entry_id      TEXT NOT NULL,
			entry_version INTEGER NOT NULL,
			tag_id        TEXT NOT NULL,
			PRIMARY KEY (entry_id, entry_version, tag_id),
			FOREIGN KEY (entry_id, entry_version) REFERENCES entries (id, version),
			FOREIGN KEY (tag_id) REFERENCES tags (id)
		)`,
		`CREATE TABLE event_tag_relations (
			event_id TEXT NOT NULL,
			tag_id   TEXT NOT NULL,
			PRIMARY KEY (event_id, tag_id),
			FOREIGN KEY (event_id) REFERENCES events (id),
			FOREIGN KEY (tag_id) REFERENCES tags (id)
		)`,
		`CREATE TABLE org_tag_relations (
			org_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			PRIMARY KEY (org_id, tag_id),
			FOREIGN KEY (org_id) REFERENCES organizations (id),
			FOREIGN KEY (tag_id) REFERENCES tags (id)
		)`,
	}
}

// Tables lists every fixture table, for whole-database digests.
func Tables() []string {
	return []string{
		"categories", "comments", "entries", "events", "ratings",
		"organizations", "tags",
		"entry_tag_relations", "event_tag_relations", "org_tag_relations",
	}
}

// CreateDatabase creates a fixture database in a temp directory and returns
// its path. The file is cleaned up with the test's temp dir.
func CreateDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")

	db := OpenRaw(t, path)
	defer db.Close()

	for _, stmt := range SchemaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("creating fixture schema: %v", err)
		}
	}
	return path
}

// OpenRaw opens a plain database/sql handle on the fixture, bypassing the
// repair store. Used for seeding broken rows and for out-of-band assertions.
func OpenRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening fixture database: %v", err)
	}
	return db
}

// Seed executes the given statements in order against the fixture.
// Statements run outside any repair transaction.
func Seed(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db := OpenRaw(t, path)
	defer db.Close()

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding fixture: %v\n  statement: %s", err, stmt)
		}
	}
}

// Count returns the number of rows matching the given query, which must be
// a SELECT COUNT(*) statement.
func Count(t *testing.T, path, query string, args ...any) int {
	t.Helper()
	db := OpenRaw(t, path)
	defer db.Close()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("counting rows: %v\n  query: %s", err, query)
	}
	return n
}
