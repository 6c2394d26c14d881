package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/iwilltry42/bm25-go/bm25"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// Standard Okapi parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Index provides keyword search over the ingested passages.
// The index is rebuilt as a whole; BM25 needs the full corpus for IDF.
type BM25Index struct {
	okapi  *bm25.BM25Okapi
	docs   []storage.StoredPassage
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewBM25Index creates an empty index.
func NewBM25Index(log *logger.Logger) *BM25Index {
	return &BM25Index{logger: log}
}

// Load rebuilds the index from the passages table.
func (idx *BM25Index) Load(ctx context.Context, db *storage.DB) error {
	passages, err := db.AllPassages(ctx)
	if err != nil {
		return fmt.Errorf("load BM25 corpus: %w", err)
	}
	return idx.Build(passages)
}

// Build replaces the index contents. Empty passages are skipped.
func (idx *BM25Index) Build(passages []storage.StoredPassage) error {
	docs := make([]storage.StoredPassage, 0, len(passages))
	corpus := make([]string, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		docs = append(docs, p)
		corpus = append(corpus, p.Text)
	}

	var okapi *bm25.BM25Okapi
	if len(corpus) > 0 {
		var err error
		okapi, err = bm25.NewBM25Okapi(corpus, tokenizeThai, bm25K1, bm25B, nil)
		if err != nil {
			return fmt.Errorf("failed to create BM25 index: %w", err)
		}
	}

	idx.mu.Lock()
	idx.okapi = okapi
	idx.docs = docs
	idx.mu.Unlock()

	idx.logger.WithField("docs", len(docs)).Info("BM25 index built")
	return nil
}

// Search returns up to k passages with a positive BM25 score, best first.
// Ties keep corpus order.
func (idx *BM25Index) Search(_ context.Context, query string, k int) ([]Passage, error) {
	if idx == nil || k <= 0 {
		return nil, nil
	}
	tokens := tokenizeThai(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.okapi == nil {
		return nil, nil
	}

	scores, err := idx.okapi.GetScores(tokens)
	if err != nil {
		return nil, fmt.Errorf("BM25 scoring failed: %w", err)
	}

	results := make([]Passage, 0, k)
	for i, score := range scores {
		if score <= 0 || i >= len(idx.docs) {
			continue
		}
		d := idx.docs[i]
		results = append(results, Passage{ID: d.ID, Text: d.Text, File: d.File, Page: d.Page, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// IsEnabled reports whether the index holds any document.
func (idx *BM25Index) IsEnabled() bool {
	if idx == nil {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.okapi != nil
}

// Count returns the number of indexed passages.
func (idx *BM25Index) Count() int {
	if idx == nil {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// tokenizeThai tokenizes mixed Thai/Latin text.
// Thai is written without spaces, so runs of Thai characters become
// overlapping character bigrams; a run of one character is kept as is.
// Other letters and digits form lower-cased words split on everything else.
func tokenizeThai(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var word strings.Builder
	var thai []rune

	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	flushThai := func() {
		switch len(thai) {
		case 0:
		case 1:
			tokens = append(tokens, string(thai))
		default:
			for i := 0; i+1 < len(thai); i++ {
				tokens = append(tokens, string(thai[i:i+2]))
			}
		}
		thai = thai[:0]
	}

	for _, r := range text {
		switch {
		case isThai(r):
			flushWord()
			thai = append(thai, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushThai()
			word.WriteRune(r)
		default:
			flushWord()
			flushThai()
		}
	}
	flushWord()
	flushThai()
	return tokens
}

// isThai reports whether r is in the Thai block, excluding Thai digits and
// punctuation that carry no lexical content.
func isThai(r rune) bool {
	return r >= 0x0E01 && r <= 0x0E4E
}
