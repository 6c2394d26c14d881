// Package ingest downloads the catalog's PDFs, splits their text into
// passages and loads them into the dense store and the sqlite corpus that
// backs BM25.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// DefaultConcurrency bounds parallel PDF downloads.
const DefaultConcurrency = 4

// Corpus is the part of storage.DB ingestion writes to.
type Corpus interface {
	SavePassagesBatch(ctx context.Context, passages []storage.StoredPassage) error
	DeletePassagesByFile(ctx context.Context, file string) (int64, error)
	PassageStats(ctx context.Context) ([]storage.FileStats, error)
	ResetPassages(ctx context.Context) error
}

// Downloader fetches one source document.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Stats tracks ingestion progress.
// All fields use atomic operations for concurrent access
type Stats struct {
	Files  atomic.Int64
	Failed atomic.Int64
	Pages  atomic.Int64
	Chunks atomic.Int64
}

// Options configures one ingestion run.
type Options struct {
	URLs          []string // Source PDFs; usually catalog.URLs()
	ForceRecreate bool     // Drop the dense collection before loading
	Concurrency   int      // Parallel downloads, default DefaultConcurrency
	ChunkSize     int
	ChunkOverlap  int
}

// Pipeline loads source PDFs into the retrieval stores.
type Pipeline struct {
	corpus     Corpus
	dense      rag.DenseStore // optional
	downloader Downloader
	extract    func([]byte) ([]Page, error)
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewPipeline creates a pipeline. dense may be nil, in which case only the
// sparse corpus is written.
func NewPipeline(corpus Corpus, dense rag.DenseStore, downloader Downloader, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		corpus:     corpus,
		dense:      dense,
		downloader: downloader,
		extract:    ExtractPages,
		metrics:    m,
		logger:     log.WithModule("ingest"),
	}
}

// Run ingests every URL. A file that fails to download, parse or store is
// logged and skipped; Run only fails when the collection cannot be prepared
// or ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{}
	start := time.Now()

	if p.dense != nil {
		if err := p.dense.EnsureCollection(ctx, opts.ForceRecreate); err != nil {
			return stats, fmt.Errorf("prepare %s collection: %w", p.dense.Name(), err)
		}
		if opts.ForceRecreate {
			p.logger.WithField("store", p.dense.Name()).Warn("Dense collection recreated")
		}
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, url := range opts.URLs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := p.ingestFile(gctx, url, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.Failed.Add(1)
				p.metrics.RecordIngestFile("error")
				p.logger.WithError(err).WithField("url", url).Warn("Skipping source file")
				return nil
			}
			stats.Files.Add(1)
			stats.Pages.Add(int64(n.pages))
			stats.Chunks.Add(int64(n.chunks))
			p.metrics.RecordIngestFile("success")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("ingest canceled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("ingest canceled: %w", err)
	}

	p.logger.WithFields(map[string]any{
		"files":       stats.Files.Load(),
		"failed":      stats.Failed.Load(),
		"chunks":      stats.Chunks.Load(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Ingestion complete")
	return stats, nil
}

type fileCounts struct {
	pages, chunks int
}

func (p *Pipeline) ingestFile(ctx context.Context, url string, opts Options) (fileCounts, error) {
	data, err := p.downloader.Fetch(ctx, url)
	if err != nil {
		return fileCounts{}, fmt.Errorf("download: %w", err)
	}
	pages, err := p.extract(data)
	if err != nil {
		return fileCounts{}, err
	}

	passages, err := Passages(url, pages, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return fileCounts{}, err
	}
	if len(passages) == 0 {
		return fileCounts{}, errors.New("no extractable text")
	}

	// Both stores replace the file's previous chunks so a shorter re-ingest
	// leaves no stale tail. Dense goes first: when it fails the sparse corpus
	// still holds the previous version of the file.
	if p.dense != nil {
		if err := p.dense.DeleteByFile(ctx, url); err != nil {
			return fileCounts{}, fmt.Errorf("clear %s: %w", p.dense.Name(), err)
		}
		if err := p.dense.Upsert(ctx, passages); err != nil {
			return fileCounts{}, fmt.Errorf("upsert %s: %w", p.dense.Name(), err)
		}
		p.metrics.RecordIngestChunks(p.dense.Name(), len(passages))
	}

	if _, err := p.corpus.DeletePassagesByFile(ctx, url); err != nil {
		return fileCounts{}, err
	}
	if err := p.corpus.SavePassagesBatch(ctx, passages); err != nil {
		return fileCounts{}, err
	}
	p.metrics.RecordIngestChunks("sqlite", len(passages))

	p.logger.WithFields(map[string]any{
		"url":    url,
		"pages":  len(pages),
		"chunks": len(passages),
	}).Debug("Source file ingested")
	return fileCounts{pages: len(pages), chunks: len(passages)}, nil
}

// Passages splits pages into chunks tagged with file = url. Chunk numbers
// restart on every page so ids stay stable when other pages change.
func Passages(url string, pages []Page, size, overlap int) ([]storage.StoredPassage, error) {
	if size <= 0 {
		size = rag.DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = rag.DefaultChunkOverlap
	}

	var out []storage.StoredPassage
	for _, pg := range pages {
		chunks, err := rag.SplitText(pg.Text, size, overlap)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pg.Number, err)
		}
		for i, text := range chunks {
			out = append(out, storage.StoredPassage{
				ID:    rag.PassageID(url, pg.Number, i),
				File:  url,
				Page:  pg.Number,
				Chunk: i,
				Text:  text,
			})
		}
	}
	return out, nil
}

// Report describes what the stores currently hold.
type Report struct {
	Files      []storage.FileStats
	DenseStore string
	DenseCount int
}

// Stats reports the sparse corpus per file and the dense point count.
func (p *Pipeline) Stats(ctx context.Context) (*Report, error) {
	files, err := p.corpus.PassageStats(ctx)
	if err != nil {
		return nil, err
	}
	r := &Report{Files: files}
	if p.dense != nil {
		r.DenseStore = p.dense.Name()
		if r.DenseCount, err = p.dense.Count(ctx); err != nil {
			return nil, fmt.Errorf("count %s: %w", p.dense.Name(), err)
		}
	}
	return r, nil
}

// Reset empties the sparse corpus and recreates the dense collection.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.corpus.ResetPassages(ctx); err != nil {
		return err
	}
	if p.dense != nil {
		if err := p.dense.EnsureCollection(ctx, true); err != nil {
			return fmt.Errorf("recreate %s collection: %w", p.dense.Name(), err)
		}
	}
	p.logger.Warn("Retrieval stores reset")
	return nil
}
