package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// ChromemStore is a file-persisted dense store for single-node deployments.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embedder   Embedder
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewChromemStore opens (or creates) the persistent DB at path and its collection.
func NewChromemStore(_ context.Context, path, collection string, emb Embedder, log *logger.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem database: %w", err)
	}

	s := &ChromemStore{db: db, name: collection, embedder: emb, logger: log}
	if err := s.openCollection(); err != nil {
		return nil, err
	}

	log.WithField("count", s.collection.Count()).Info("Chromem store opened")
	return s, nil
}

func (s *ChromemStore) openCollection() error {
	c, err := s.db.GetOrCreateCollection(s.name, nil, func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedDocument(ctx, text)
	})
	if err != nil {
		return fmt.Errorf("failed to get/create collection: %w", err)
	}
	s.collection = c
	return nil
}

// Name implements DenseStore.
func (s *ChromemStore) Name() string { return "chromem" }

// Search embeds query and returns the k nearest passages.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults above the collection size.
	n := min(k, s.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	passages := make([]Passage, len(results))
	for i, r := range results {
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		passages[i] = Passage{
			ID:    r.ID,
			Text:  r.Content,
			File:  r.Metadata[metaFile],
			Page:  page,
			Score: float64(r.Similarity),
		}
	}
	return passages, nil
}

// EnsureCollection implements DenseStore. The collection always exists once
// the store is open, so only recreate has an effect.
func (s *ChromemStore) EnsureCollection(_ context.Context, recreate bool) error {
	if !recreate {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	s.logger.WithField("collection", s.name).Warn("Chromem collection recreated")
	return s.openCollection()
}

// Verify implements DenseStore. chromem collections carry no fixed dimension.
func (s *ChromemStore) Verify(context.Context) error { return nil }

// DeleteByFile implements DenseStore.
func (s *ChromemStore) DeleteByFile(ctx context.Context, file string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.Delete(ctx, map[string]string{metaFile: file}, nil); err != nil {
		return fmt.Errorf("chromem delete %s: %w", file, err)
	}
	return nil
}

// Upsert embeds and stores passages, overwriting existing ids.
func (s *ChromemStore) Upsert(ctx context.Context, passages []storage.StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}
	vectors, err := embedAll(ctx, s.embedder, passages)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		docs[i] = chromem.Document{
			ID: p.ID,
			Metadata: map[string]string{
				metaSource: p.File,
				metaFile:   p.File,
				metaPage:   strconv.Itoa(p.Page),
				metaChunk:  strconv.Itoa(p.Chunk),
			},
			Embedding: vectors[i],
			Content:   p.Text,
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.AddDocuments(ctx, docs, embedConcurrency); err != nil {
		return fmt.Errorf("chromem add documents: %w", err)
	}
	return nil
}

// Count implements DenseStore.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error { return nil }
