// Package maintenance runs background housekeeping for generated documents.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// Registry is the part of storage.DB the sweeper reads and prunes.
type Registry interface {
	DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]storage.GeneratedDocument, error)
	ClaimDocument(ctx context.Context, fileName string, createdAt time.Time) (bool, error)
	RestoreDocument(ctx context.Context, doc storage.GeneratedDocument) error
}

// Remover deletes the archived copy of a generated file.
type Remover interface {
	Remove(ctx context.Context, name string) error
}

// Locker is a cross-replica mutex such as r2client.DistributedLock.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper deletes generated documents older than the retention window from
// the output directory, the archive and the registry.
type Sweeper struct {
	registry  Registry
	outputDir string
	retention time.Duration
	archive   Remover // optional
	lock      Locker  // optional
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// Options holds the optional collaborators of a Sweeper.
type Options struct {
	Archive Remover
	Lock    Locker
	Metrics *metrics.Metrics
}

// NewSweeper creates a sweeper. A non-positive retention disables it.
func NewSweeper(registry Registry, outputDir string, retention time.Duration, log *logger.Logger, opts Options) *Sweeper {
	return &Sweeper{
		registry:  registry,
		outputDir: outputDir,
		retention: retention,
		archive:   opts.Archive,
		lock:      opts.Lock,
		metrics:   opts.Metrics,
		logger:    log,
	}
}

// Enabled reports whether a retention window is configured.
func (s *Sweeper) Enabled() bool {
	return s != nil && s.retention > 0
}

// Sweep removes every document created before now minus the retention.
// Files already gone from disk still have their registry row removed.
// It returns the number of documents removed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	expired, err := s.registry.DocumentsOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("maintenance: list expired: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, doc := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := s.remove(ctx, doc)
		if err != nil {
			s.logger.WithError(err).WithField("file", doc.FileName).Warn("Failed to remove expired document")
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}

	s.metrics.RecordRetentionDeleted(removed)
	return removed, errors.Join(errs...)
}

// remove claims the registry row first. A document re-rendered since it was
// listed no longer matches and keeps its files. When a file cannot be removed
// the row is restored so the next sweep retries.
func (s *Sweeper) remove(ctx context.Context, doc storage.GeneratedDocument) (bool, error) {
	claimed, err := s.registry.ClaimDocument(ctx, doc.FileName, doc.CreatedAt)
	if err != nil {
		return false, err
	}
	if !claimed {
		s.logger.WithField("file", doc.FileName).Debug("Document refreshed since listing, kept")
		return false, nil
	}

	if err := s.removeFiles(ctx, doc); err != nil {
		if rerr := s.registry.RestoreDocument(context.WithoutCancel(ctx), doc); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, err
	}
	return true, nil
}

func (s *Sweeper) removeFiles(ctx context.Context, doc storage.GeneratedDocument) error {
	local := filepath.Join(s.outputDir, filepath.Base(doc.FileName))
	if err := os.Remove(local); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", local, err)
	}
	if doc.Archived && s.archive != nil {
		if err := s.archive.Remove(ctx, doc.FileName); err != nil {
			return fmt.Errorf("remove archived %s: %w", doc.FileName, err)
		}
	}
	return nil
}

// RunOnce sweeps under the lock when one is configured. It reports false
// when another replica holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return false, fmt.Errorf("maintenance: acquire lock: %w", err)
		}
		if !ok {
			return false, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("Failed to release retention lock")
			}
		}()
	}

	start := time.Now()
	removed, err := s.Sweep(ctx, start)
	s.logger.WithFields(map[string]any{
		"removed":  removed,
		"duration": time.Since(start).String(),
	}).Info("Retention sweep complete")
	return true, err
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if !s.Enabled() {
		return
	}
	s.logger.WithField("retention", s.retention.String()).Info("Retention sweeper started")

	sweep := func() {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("Retention sweep failed")
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
