package storage

import "time"

// StoredPassage is one ingested text chunk.
type StoredPassage struct {
	ID         string
	File       string // Source PDF URL
	Page       int
	Chunk      int
	Text       string
	IngestedAt time.Time
}

// FileStats summarises the passages ingested from one file.
type FileStats struct {
	File     string
	Passages int
	Pages    int
}

// GeneratedDocument is a registry row for a file written to the output directory.
type GeneratedDocument struct {
	FileName  string
	FormCode  string
	StudentID string
	SizeBytes int64
	Archived  bool
	CreatedAt time.Time
}
