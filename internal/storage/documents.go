package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDocumentNotFound is returned when a registry row does not exist.
var ErrDocumentNotFound = errors.New("generated document not found")

// RecordDocument inserts or refreshes the registry row of a rendered file.
// Re-rendering the same form for the same student overwrites the file, so the
// row is replaced rather than duplicated.
func (db *DB) RecordDocument(ctx context.Context, doc GeneratedDocument) error {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO generated_documents (file_name, form_code, student_id, size_bytes, archived, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			form_code = excluded.form_code,
			student_id = excluded.student_id,
			size_bytes = excluded.size_bytes,
			archived = 0,
			created_at = excluded.created_at`,
		doc.FileName, doc.FormCode, doc.StudentID, doc.SizeBytes, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.FileName, err)
	}
	return nil
}

// MarkArchived flags a document as mirrored to object storage.
func (db *DB) MarkArchived(ctx context.Context, fileName string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE generated_documents SET archived = 1 WHERE file_name = ?`, fileName)
	if err != nil {
		return fmt.Errorf("failed to mark %s archived: %w", fileName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// GetDocument returns the registry row for fileName.
func (db *DB) GetDocument(ctx context.Context, fileName string) (*GeneratedDocument, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT file_name, form_code, student_id, size_bytes, archived, created_at
		FROM generated_documents WHERE file_name = ?`, fileName)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", fileName, err)
	}
	return doc, nil
}

// DocumentsOlderThan lists documents created before cutoff, oldest first.
func (db *DB) DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]GeneratedDocument, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT file_name, form_code, student_id, size_bytes, archived, created_at
		FROM generated_documents WHERE created_at < ? ORDER BY created_at`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GeneratedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// ClaimDocument removes the registry row of fileName only while it still
// carries createdAt, so a row refreshed by a re-render survives. It reports
// whether a row was removed.
func (db *DB) ClaimDocument(ctx context.Context, fileName string, createdAt time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM generated_documents WHERE file_name = ? AND created_at = ?`,
		fileName, createdAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s: %w", fileName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s: %w", fileName, err)
	}
	return n > 0, nil
}

// RestoreDocument puts back a claimed row. A row written since the claim
// wins and is left as is.
func (db *DB) RestoreDocument(ctx context.Context, doc GeneratedDocument) error {
	archived := 0
	if doc.Archived {
		archived = 1
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO generated_documents (file_name, form_code, student_id, size_bytes, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO NOTHING`,
		doc.FileName, doc.FormCode, doc.StudentID, doc.SizeBytes, archived, doc.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to restore document %s: %w", doc.FileName, err)
	}
	return nil
}

// CountDocuments returns the number of registered documents.
func (db *DB) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*GeneratedDocument, error) {
	var doc GeneratedDocument
	var archived int
	var createdAt int64
	if err := s.Scan(&doc.FileName, &doc.FormCode, &doc.StudentID, &doc.SizeBytes, &archived, &createdAt); err != nil {
		return nil, err
	}
	doc.Archived = archived == 1
	doc.CreatedAt = time.Unix(createdAt, 0)
	return &doc, nil
}
