package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(db *sql.DB) error {
	if err := createPassagesTable(db); err != nil {
		return err
	}
	return createGeneratedDocumentsTable(db)
}

// passages is both the BM25 corpus and the ingestion log. The id matches the
// point id in the dense store so the two stay aligned across re-ingests.
func createPassagesTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		file TEXT NOT NULL,
		page INTEGER NOT NULL,
		chunk INTEGER NOT NULL,
		text TEXT NOT NULL,
		ingested_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_passages_file ON passages(file);
	`

	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}
	return nil
}

func createGeneratedDocumentsTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS generated_documents (
		file_name TEXT PRIMARY KEY,
		form_code TEXT NOT NULL,
		student_id TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generated_documents_created_at ON generated_documents(created_at);
	`

	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create generated_documents table: %w", err)
	}
	return nil
}
