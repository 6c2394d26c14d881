package rag

import "sort"

const (
	// RRFConstant is k in 1 / (k + rank).
	RRFConstant = 60

	// DefaultSparseWeight is the BM25 share of the fused score; dense gets the rest.
	DefaultSparseWeight = 0.4
)

// FuseRRF combines sparse and dense rankings with Reciprocal Rank Fusion:
//
//	score(d) = Σ w_i / (k + rank_i)
//
// Passages are matched by ID. Text and metadata come from whichever list
// saw the passage first, dense preferred. Equal scores keep dense order, then
// sparse order. At most topN results are returned when topN > 0.
func FuseRRF(sparse, dense []Passage, sparseWeight float64, topN int) []Passage {
	sparseWeight = min(max(sparseWeight, 0), 1)
	denseWeight := 1 - sparseWeight

	type fused struct {
		p     Passage
		order int
	}
	byID := make(map[string]*fused, len(sparse)+len(dense))
	order := 0

	add := func(list []Passage, weight float64) {
		for i, p := range list {
			score := weight / float64(RRFConstant+i+1)
			if f, ok := byID[p.ID]; ok {
				f.p.Score += score
				continue
			}
			p.Score = score
			byID[p.ID] = &fused{p: p, order: order}
			order++
		}
	}
	add(dense, denseWeight)
	add(sparse, sparseWeight)

	results := make([]*fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, f)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].p.Score != results[j].p.Score {
			return results[i].p.Score > results[j].p.Score
		}
		return results[i].order < results[j].order
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	out := make([]Passage, len(results))
	for i, f := range results {
		out[i] = f.p
	}
	return out
}
