package rag

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

// Qdrant exposes REST on 6333 and gRPC on 6334. The client speaks gRPC.
const (
	qdrantRESTPort = 6333
	qdrantGRPCPort = 6334
)

// ErrCollectionMismatch means an existing collection was built for another
// embedding model and cannot be searched or written with this one.
var ErrCollectionMismatch = errors.New("dense collection vector config mismatch")

// qdrantAPI is the part of *qdrant.Client the store uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantStore is the dense store backed by a Qdrant collection with a named
// cosine vector.
type QdrantStore struct {
	client     qdrantAPI
	collection string
	embedder   Embedder
	logger     *logger.Logger
}

// NewQdrantStore connects to the Qdrant instance at rawURL. The connection is
// lazy; the first call surfaces reachability errors.
func NewQdrantStore(rawURL, apiKey, collection string, emb Embedder, log *logger.Logger) (*QdrantStore, error) {
	cfg, err := qdrantConfig(rawURL, apiKey)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	log.WithFields(map[string]any{
		"host":       cfg.Host,
		"port":       cfg.Port,
		"tls":        cfg.UseTLS,
		"collection": collection,
	}).Info("Qdrant store configured")
	return &QdrantStore{client: client, collection: collection, embedder: emb, logger: log}, nil
}

// qdrantConfig maps a Qdrant URL to client config. The REST port is
// rewritten to the gRPC port; a missing port means the gRPC default.
func qdrantConfig(rawURL, apiKey string) (*qdrant.Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid qdrant url %q", rawURL)
	}

	port := qdrantGRPCPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q", p)
		}
		if n != qdrantRESTPort {
			port = n
		}
	}

	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	}, nil
}

// Name implements DenseStore.
func (s *QdrantStore) Name() string { return "qdrant" }

// Search embeds query and returns the k nearest points on the named vector.
func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Using:          qdrant.PtrOf(VectorName),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	passages := make([]Passage, 0, len(points))
	for _, pt := range points {
		passages = append(passages, passageFromPayload(pointID(pt.GetId()), pt.GetPayload(), float64(pt.GetScore())))
	}
	return passages, nil
}

// EnsureCollection implements DenseStore. An existing collection whose
// named vector does not have VectorSize dimensions is an
// ErrCollectionMismatch unless recreate is set.
func (s *QdrantStore) EnsureCollection(ctx context.Context, recreate bool) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}

	if exists && recreate {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("qdrant delete collection: %w", err)
		}
		s.logger.WithField("collection", s.collection).Warn("Qdrant collection dropped")
		exists = false
	}
	if exists {
		return s.checkVectors(ctx)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     VectorSize,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	s.logger.WithField("collection", s.collection).Info("Qdrant collection created")
	return nil
}

// Verify implements DenseStore. A missing collection is not an error; the
// ingest command creates it.
func (s *QdrantStore) Verify(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if !exists {
		return nil
	}
	return s.checkVectors(ctx)
}

func (s *QdrantStore) checkVectors(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection info: %w", err)
	}
	params, ok := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[VectorName]
	if !ok {
		return fmt.Errorf("%w: collection %q has no vector named %q, rerun ingest with --force-recreate",
			ErrCollectionMismatch, s.collection, VectorName)
	}
	if size := params.GetSize(); size != VectorSize {
		return fmt.Errorf("%w: collection %q stores %d-dim vectors but the embedder produces %d, rerun ingest with --force-recreate",
			ErrCollectionMismatch, s.collection, size, VectorSize)
	}
	return nil
}

// DeleteByFile implements DenseStore. Points written by older uploaders
// carry only metadata.source, so either key matches.
func (s *QdrantStore) DeleteByFile(ctx context.Context, file string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Should: []*qdrant.Condition{
				qdrant.NewMatch(payloadMetadata+"."+metaFile, file),
				qdrant.NewMatch(payloadMetadata+"."+metaSource, file),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %w", file, err)
	}
	return nil
}

// Upsert embeds and writes passages. Point ids are the passage ids.
func (s *QdrantStore) Upsert(ctx context.Context, passages []storage.StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}
	vectors, err := embedAll(ctx, s.embedder, passages)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(passages))
	for i, p := range passages {
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				VectorName: qdrant.NewVector(vectors[i]...),
			}),
			Payload: qdrant.NewValueMap(passagePayload(p)),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Count implements DenseStore.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func passagePayload(p storage.StoredPassage) map[string]any {
	return map[string]any{
		payloadContent: p.Text,
		payloadMetadata: map[string]any{
			metaSource: p.File,
			metaFile:   p.File,
			metaPage:   int64(p.Page),
			metaChunk:  int64(p.Chunk),
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// passageFromPayload reads a point written by Upsert or by the LangChain
// upload script. file falls back to source; page may be stored as a float.
func passageFromPayload(id string, payload map[string]*qdrant.Value, score float64) Passage {
	p := Passage{ID: id, Score: score, Text: payload[payloadContent].GetStringValue()}

	meta := payload[payloadMetadata].GetStructValue().GetFields()
	p.File = meta[metaFile].GetStringValue()
	if p.File == "" {
		p.File = meta[metaSource].GetStringValue()
	}
	if v := meta[metaPage]; v != nil {
		switch v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			p.Page = int(v.GetIntegerValue())
		case *qdrant.Value_DoubleValue:
			p.Page = int(v.GetDoubleValue())
		}
	}
	return p
}
