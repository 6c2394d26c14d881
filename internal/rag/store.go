package rag

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// Dense store defaults. The vector size is that of the Gemini embedding
// model; a collection built with another model must be recreated.
const (
	DefaultCollection = "demo_collection_railway_v2"
	VectorName        = "dense_vector"
	VectorSize        = 768

	// embedConcurrency bounds parallel embedding calls during upsert.
	embedConcurrency = 4
)

// Payload keys, in the LangChain document layout the production collection uses:
// {"page_content": ..., "metadata": {"source", "file", "page", "chunk"}}.
const (
	payloadContent  = "page_content"
	payloadMetadata = "metadata"
	metaSource      = "source"
	metaFile        = "file"
	metaPage        = "page"
	metaChunk       = "chunk"
)

// DenseStore is a vector store searched by query embedding.
type DenseStore interface {
	// Name labels metrics and logs.
	Name() string
	Search(ctx context.Context, query string, k int) ([]Passage, error)
	// EnsureCollection creates the collection if missing; recreate drops it first.
	EnsureCollection(ctx context.Context, recreate bool) error
	// Verify reports ErrCollectionMismatch when an existing collection cannot
	// hold this store's vectors.
	Verify(ctx context.Context) error
	Upsert(ctx context.Context, passages []storage.StoredPassage) error
	// DeleteByFile removes every passage of one source file.
	DeleteByFile(ctx context.Context, file string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// StoreConfig selects and configures the dense backend.
type StoreConfig struct {
	QdrantURL    string
	QdrantAPIKey string
	Collection   string
	ChromemPath  string
}

// NewDenseStore returns a QdrantStore when a Qdrant URL is configured, a
// ChromemStore otherwise. It returns nil without an embedder; dense
// retrieval is then disabled.
func NewDenseStore(ctx context.Context, cfg StoreConfig, emb Embedder, log *logger.Logger) (DenseStore, error) {
	if emb == nil {
		log.Info("Embedding API key not configured, dense retrieval disabled")
		return nil, nil
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	if cfg.QdrantURL != "" {
		s, err := NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.Collection, emb, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := NewChromemStore(ctx, cfg.ChromemPath, cfg.Collection, emb, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// embedAll embeds every passage as a document, at most embedConcurrency at a time.
func embedAll(ctx context.Context, emb Embedder, passages []storage.StoredPassage) ([][]float32, error) {
	vectors := make([][]float32, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, p := range passages {
		g.Go(func() error {
			v, err := emb.EmbedDocument(gctx, p.Text)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.ID, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
