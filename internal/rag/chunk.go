package rag

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking parameters used at ingestion.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// SplitText splits text into chunks of at most size runes, trying paragraph,
// line and word boundaries before falling back to single characters. Adjacent
// chunks share up to overlap runes.
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	return chunks, nil
}
