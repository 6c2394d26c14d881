// Package rag provides the semantic retrieval used by the question-answering
// branch: a dense vector store (Qdrant or chromem-go), a BM25 index over the
// ingested passages, and Reciprocal Rank Fusion of the two.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenericDocName is the display name of a passage without file metadata.
const GenericDocName = "เอกสารทั่วไป"

// Passage is one retrieved chunk of an ingested document.
type Passage struct {
	ID    string
	Text  string
	File  string // Source PDF URL set at ingestion
	Page  int
	Score float64
}

// DisplayName is the name shown in a source when no catalog form matches:
// the last path segment of File.
func (p Passage) DisplayName() string {
	if p.File == "" {
		return GenericDocName
	}
	if i := strings.LastIndex(p.File, "/"); i >= 0 && i < len(p.File)-1 {
		return p.File[i+1:]
	}
	return p.File
}

// Retriever returns up to k passages relevant to query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// Embedder turns text into a dense vector. Queries and documents are
// embedded with different task types.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// PassageID is the stable identifier of a chunk. Re-ingesting the same file
// overwrites the same ids in both the dense store and sqlite.
func PassageID(file string, page, chunk int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#page=%d#chunk=%d", file, page, chunk)).String()
}
