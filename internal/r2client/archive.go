package r2client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
)

// GeneratedPrefix is the key prefix of mirrored generated documents.
const GeneratedPrefix = "generated/"

// objectStore is the subset of Client the archive needs.
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Archive mirrors generated documents to R2 so they survive the local
// output directory being wiped (redeploys, ephemeral disks).
type Archive struct {
	store objectStore
}

// NewArchive wraps a client. A nil client yields a nil Archive, whose
// methods are no-ops.
func NewArchive(c *Client) *Archive {
	if c == nil {
		return nil
	}
	return &Archive{store: c}
}

// GeneratedKey is the object key of a generated file.
func GeneratedKey(name string) string {
	return GeneratedPrefix + path.Base(name)
}

// Enabled reports whether documents are mirrored.
func (a *Archive) Enabled() bool { return a != nil && a.store != nil }

// Mirror uploads the file at localPath under GeneratedKey(name).
func (a *Archive) Mirror(ctx context.Context, localPath, name, contentType string) error {
	if !a.Enabled() {
		return nil
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := a.store.Upload(ctx, GeneratedKey(name), f, contentType); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// Open returns the archived copy of name. It returns ErrNotFound when the
// archive is disabled or holds no such file. Caller must close the body.
func (a *Archive) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !a.Enabled() {
		return nil, ErrNotFound
	}
	body, _, err := a.store.Download(ctx, GeneratedKey(name))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Remove deletes the archived copy of name.
func (a *Archive) Remove(ctx context.Context, name string) error {
	if !a.Enabled() {
		return nil
	}
	return a.store.DeleteObject(ctx, GeneratedKey(name))
}
