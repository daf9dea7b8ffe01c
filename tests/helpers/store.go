// Package helpers provides shared test fixtures.
package helpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/frateto/gateway/store"
	_ "github.com/mattn/go-sqlite3"
)

// NewTestExecutor seeds a small votes dataset on disk and opens it through
// the read-only executor.
func NewTestExecutor(t *testing.T) *store.Executor {
	t.Helper()

	path := filepath.Join(t.TempDir(), "votes.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open seed database: %v", err)
	}
	seed := []string{
		`CREATE TABLE votes (
			id INTEGER PRIMARY KEY,
			display_title TEXT NOT NULL,
			count_for INTEGER NOT NULL,
			count_against INTEGER NOT NULL
		)`,
		`CREATE TABLE members (
			id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			country_code TEXT NOT NULL
		)`,
		`INSERT INTO votes VALUES (1, 'Climate resolution', 400, 200)`,
		`INSERT INTO votes VALUES (2, 'Budget 2025', 350, 280)`,
		`INSERT INTO members VALUES (1, 'Ada', 'Novak', 'SVN')`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed database: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close seed database: %v", err)
	}

	e, err := store.NewExecutor("file:" + path + "?mode=ro")
	if err != nil {
		t.Fatalf("failed to open executor: %v", err)
	}
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}
