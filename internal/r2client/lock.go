package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// lockStore is the subset of Client the lock needs.
type lockStore interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag string, contentType string) (bool, string, error)
	DeleteObject(ctx context.Context, key string) error
}

// LockInfo contains information about a distributed lock.
type LockInfo struct {
	Owner     string    `json:"owner"`      // Unique identifier of the lock owner
	ExpiresAt time.Time `json:"expires_at"` // When the lock expires
}

// DistributedLock is a lease stored as an R2 object and taken with
// conditional writes. It keeps replicas from running the same background
// job at the same time.
type DistributedLock struct {
	client  lockStore
	key     string
	ttl     time.Duration
	ownerID string
	etag    string // ETag of the lock we hold (for release verification)
	now     func() time.Time
}

// NewDistributedLock creates a new distributed lock.
func NewDistributedLock(client lockStore, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:  client,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.New().String(),
		now:     time.Now,
	}
}

// Acquire attempts to acquire the lock.
// Returns (true, nil) if the lock was acquired.
// Returns (false, nil) if another process holds the lock (lock exists and not expired).
// Returns (false, error) on unexpected errors.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	data, err := l.payload()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, etag, err := l.client.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(data), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	expired, oldEtag, err := l.checkExpired(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock: check expired: %w", err)
	}
	if !expired {
		return false, nil
	}

	// Expired: take it over only if nobody else rewrote it meanwhile.
	stolen, newEtag, err := l.client.PutObjectIfMatch(ctx, l.key, bytes.NewReader(data), oldEtag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: steal: %w", err)
	}
	if stolen {
		l.etag = newEtag
		return true, nil
	}
	return false, nil
}

// Release deletes the lock if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	body, _, err := l.client.Download(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("release lock: verify: %w", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		return fmt.Errorf("release lock: read: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil && info.Owner != l.ownerID {
		return nil // stolen after expiry
	}
	l.etag = ""
	return l.client.DeleteObject(ctx, l.key)
}

// OwnerID returns the unique identifier of this lock instance.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

func (l *DistributedLock) payload() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: l.now().Add(l.ttl)})
}

// checkExpired reports whether the current lock object is expired, with its
// ETag. Unreadable lock data counts as expired.
func (l *DistributedLock) checkExpired(ctx context.Context) (bool, string, error) {
	body, etag, err := l.client.Download(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, "", nil
		}
		return false, "", err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return false, "", fmt.Errorf("read lock: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return true, etag, nil
	}
	return l.now().After(info.ExpiresAt), etag, nil
}
