package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// SavePassagesBatch upserts passages in one transaction.
func (db *DB) SavePassagesBatch(ctx context.Context, passages []StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}

	query := `
		INSERT INTO passages (id, file, page, chunk, text, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file = excluded.file,
			page = excluded.page,
			chunk = excluded.chunk,
			text = excluded.text,
			ingested_at = excluded.ingested_at
	`

	start := time.Now()
	ingestedAt := start.Unix()
	err := db.ExecBatchContext(ctx, query, func(stmt *sql.Stmt) error {
		for _, p := range passages {
			if _, err := stmt.ExecContext(ctx, p.ID, p.File, p.Page, p.Chunk, p.Text, ingestedAt); err != nil {
				return fmt.Errorf("save passage %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save passages", "count", len(passages), "error", err)
		return fmt.Errorf("failed to save passages: %w", err)
	}

	if duration := time.Since(start); duration > 500*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "SavePassagesBatch",
			"duration_ms", duration.Milliseconds(),
			"count", len(passages))
	}
	return nil
}

// AllPassages returns the whole corpus ordered by file, page and chunk.
func (db *DB) AllPassages(ctx context.Context) ([]StoredPassage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, file, page, chunk, text, ingested_at FROM passages ORDER BY file, page, chunk`)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredPassage
	for rows.Next() {
		var p StoredPassage
		var ingestedAt int64
		if err := rows.Scan(&p.ID, &p.File, &p.Page, &p.Chunk, &p.Text, &ingestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		p.IngestedAt = time.Unix(ingestedAt, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPassages returns the number of stored passages.
func (db *DB) CountPassages(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// PassageStats groups the corpus by source file.
func (db *DB) PassageStats(ctx context.Context) ([]FileStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT file, COUNT(*), COUNT(DISTINCT page)
		FROM passages GROUP BY file ORDER BY file`)
	if err != nil {
		return nil, fmt.Errorf("failed to query passage stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FileStats
	for rows.Next() {
		var s FileStats
		if err := rows.Scan(&s.File, &s.Passages, &s.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan passage stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeletePassagesByFile removes every chunk of file, used before re-ingesting it.
func (db *DB) DeletePassagesByFile(ctx context.Context, file string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM passages WHERE file = ?`, file)
	if err != nil {
		return 0, fmt.Errorf("failed to delete passages for %s: %w", file, err)
	}
	return res.RowsAffected()
}

// ResetPassages empties the corpus.
func (db *DB) ResetPassages(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM passages`); err != nil {
		return fmt.Errorf("failed to reset passages: %w", err)
	}
	return nil
}
