package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestNew_NestedDirectory tests database creation with nested directory path
func TestNew_NestedDirectory(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "sub1", "sub2", "kmutt.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database with nested path: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file not created: %v", err)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestNew_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "kmutt.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := db.SavePassagesBatch(ctx, []StoredPassage{{ID: "a", File: "f", Page: 1, Text: "x"}}); err != nil {
		t.Fatalf("SavePassagesBatch() failed: %v", err)
	}
	_ = db.Close()

	db, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	n, err := db.CountPassages(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountPassages() = %d, %v; want 1", n, err)
	}
}

func TestExecBatchContext_RollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)

	boom := errors.New("boom")
	err := db.ExecBatchContext(ctx,
		`INSERT INTO passages (id, file, page, chunk, text, ingested_at) VALUES (?, 'f', 1, 0, 't', 0)`,
		func(stmt *sql.Stmt) error {
			if _, err := stmt.ExecContext(ctx, "p1"); err != nil {
				return err
			}
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("ExecBatchContext() = %v, want boom", err)
	}

	n, _ := db.CountPassages(ctx)
	if n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}
