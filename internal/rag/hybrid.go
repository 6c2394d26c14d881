package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
)

// minFetch is the per-backend candidate floor for fusion.
const minFetch = 10

// HybridRetriever combines dense and BM25 search with Reciprocal Rank Fusion.
type HybridRetriever struct {
	dense        DenseStore
	sparse       *BM25Index
	sparseWeight float64
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewHybridRetriever creates a retriever. Either backend may be nil; the
// other is then used alone.
func NewHybridRetriever(dense DenseStore, sparse *BM25Index, m *metrics.Metrics, log *logger.Logger) *HybridRetriever {
	return &HybridRetriever{
		dense:        dense,
		sparse:       sparse,
		sparseWeight: DefaultSparseWeight,
		metrics:      m,
		logger:       log,
	}
}

// Search runs both backends in parallel and fuses their rankings.
//
// A backend that fails is logged and ignored as long as the other one
// answered. When every enabled backend fails, the errors are returned. There
// is no retry.
func (h *HybridRetriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if h == nil || k <= 0 {
		return nil, nil
	}

	denseOn := h.dense != nil
	sparseOn := h.sparse.IsEnabled()
	if !denseOn && !sparseOn {
		return nil, nil
	}

	fetchN := max(k*3, minFetch)

	var (
		denseRes, sparseRes []Passage
		denseErr, sparseErr error
		g                   errgroup.Group
	)
	if denseOn {
		g.Go(func() error {
			start := time.Now()
			denseRes, denseErr = h.dense.Search(ctx, query, fetchN)
			h.metrics.RecordRetrieval(h.dense.Name(), time.Since(start).Seconds(), denseErr)
			return nil
		})
	}
	if sparseOn {
		g.Go(func() error {
			start := time.Now()
			sparseRes, sparseErr = h.sparse.Search(ctx, query, fetchN)
			h.metrics.RecordRetrieval("bm25", time.Since(start).Seconds(), sparseErr)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case denseErr != nil && (sparseErr != nil || !sparseOn):
		return nil, fmt.Errorf("retrieval failed: %w", errors.Join(denseErr, sparseErr))
	case sparseErr != nil && !denseOn:
		return nil, fmt.Errorf("retrieval failed: %w", sparseErr)
	}
	if denseErr != nil {
		h.logger.WithError(denseErr).Warn("Dense search failed, using BM25 only")
	}
	if sparseErr != nil {
		h.logger.WithError(sparseErr).Warn("BM25 search failed, using dense only")
	}

	var results []Passage
	switch {
	case len(sparseRes) == 0:
		results = truncate(denseRes, k)
	case len(denseRes) == 0:
		results = truncate(sparseRes, k)
	default:
		results = FuseRRF(sparseRes, denseRes, h.sparseWeight, k)
	}

	h.logger.WithFields(map[string]any{
		"dense_count":  len(denseRes),
		"sparse_count": len(sparseRes),
		"result_count": len(results),
	}).Debug("Hybrid search completed")
	return results, nil
}

// IsEnabled reports whether at least one backend is available.
func (h *HybridRetriever) IsEnabled() bool {
	return h != nil && (h.dense != nil || h.sparse.IsEnabled())
}

// Close releases the dense store.
func (h *HybridRetriever) Close() error {
	if h == nil || h.dense == nil {
		return nil
	}
	return h.dense.Close()
}

func truncate(ps []Passage, k int) []Passage {
	if len(ps) > k {
		return ps[:k]
	}
	return ps
}
