package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/garyellow/kmutt-form-bot/internal/chat"
	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/genai"
	"github.com/garyellow/kmutt-form-bot/internal/lazy"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/r2client"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
)

// lazyComponents are the expensive collaborators built on first use.
type lazyComponents struct {
	retriever *lazy.Value[rag.Retriever]
	advisor   *lazy.Value[chat.Answerer]
	extractor *lazy.Value[chat.Extractor]
}

// newLazyComponents defers construction of the retriever and the two LLM
// stages. A failed build is retried by the next request.
func (a *Application) newLazyComponents() lazyComponents {
	return lazyComponents{
		retriever: lazy.New(a.buildRetriever),
		advisor: lazy.New(func(ctx context.Context) (chat.Answerer, error) {
			return genai.CreateAdvisor(ctx, buildLLMConfig(a.cfg), a.catalog, a.metrics)
		}),
		extractor: lazy.New(func(ctx context.Context) (chat.Extractor, error) {
			return genai.CreateExtractor(ctx, buildLLMConfig(a.cfg), a.catalog, a.metrics)
		}),
	}
}

// buildRetriever loads the BM25 corpus from sqlite and opens the dense
// store. With neither available it still returns a retriever; answers then
// rely on classifier context alone.
func (a *Application) buildRetriever(ctx context.Context) (rag.Retriever, error) {
	bm25 := rag.NewBM25Index(a.logger)
	if err := bm25.Load(ctx, a.db); err != nil {
		a.logger.WithError(err).Warn("BM25 corpus unavailable")
	}

	dense, err := openDenseStore(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	dense = checkDenseStore(ctx, dense, a.logger)

	h := rag.NewHybridRetriever(dense, bm25, a.metrics, a.logger.WithModule("rag"))
	if !h.IsEnabled() {
		a.logger.Warn("No retrieval backend available, run the ingest command to load passages")
	}
	a.logger.WithFields(map[string]any{
		"bm25_passages": bm25.Count(),
		"dense":         dense != nil,
	}).Info("Retriever initialized")
	return h, nil
}

// openDenseStore returns nil without a Gemini key.
func openDenseStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (rag.DenseStore, error) {
	ec, err := genai.NewEmbeddingClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	if ec == nil {
		return nil, nil
	}
	return rag.NewDenseStore(ctx, rag.StoreConfig{
		QdrantURL:    cfg.QdrantURL,
		QdrantAPIKey: cfg.QdrantAPIKey,
		Collection:   cfg.QdrantCollection,
		ChromemPath:  cfg.ChromemPath(),
	}, ec, log)
}

// checkDenseStore drops a dense store whose collection was built for another
// embedding model, so lexical retrieval keeps serving. Other verify errors
// keep the store; the hybrid retriever already degrades per query.
func checkDenseStore(ctx context.Context, dense rag.DenseStore, log *logger.Logger) rag.DenseStore {
	if dense == nil {
		return nil
	}
	err := dense.Verify(ctx)
	switch {
	case err == nil:
		return dense
	case errors.Is(err, rag.ErrCollectionMismatch):
		log.WithError(err).WithField("store", dense.Name()).Error("Dense store disabled")
		if cerr := dense.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close dense store")
		}
		return nil
	default:
		log.WithError(err).WithField("store", dense.Name()).Warn("Dense store verify failed")
		return dense
	}
}

// buildLLMConfig maps the provider keys, models and order from the
// application config.
func buildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()

	llmCfg.Gemini = genai.ProviderConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}
	llmCfg.Groq = genai.ProviderConfig{APIKey: cfg.GroqAPIKey, Model: cfg.GroqModel}
	llmCfg.Cerebras = genai.ProviderConfig{APIKey: cfg.CerebrasAPIKey, Model: cfg.CerebrasModel}

	if len(cfg.LLMProviders) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLMProviders))
		for _, p := range cfg.LLMProviders {
			switch p {
			case config.ProviderGemini:
				providers = append(providers, genai.ProviderGemini)
			case config.ProviderGroq:
				providers = append(providers, genai.ProviderGroq)
			case config.ProviderCerebras:
				providers = append(providers, genai.ProviderCerebras)
			default:
				slog.Warn("ignoring unknown provider", "name", p)
			}
		}
		if len(providers) > 0 {
			llmCfg.Providers = providers
		}
	}

	return llmCfg
}

// openArchive connects to R2 when all four settings are present.
func openArchive(ctx context.Context, cfg *config.Config) (*r2client.Client, error) {
	if !cfg.R2Enabled() {
		if cfg.R2Partial() {
			return nil, errors.New("r2: set all of account id, access key id, secret and bucket, or none")
		}
		return nil, nil
	}
	return r2client.New(ctx, r2client.Config{
		Endpoint:    fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID),
		AccessKeyID: cfg.R2AccessKeyID,
		SecretKey:   cfg.R2SecretAccessKey,
		BucketName:  cfg.R2BucketName,
	})
}

// closeBuilt closes a lazily built component if it was ever built.
func closeBuilt[T any](v *lazy.Value[T]) error {
	if v == nil {
		return nil
	}
	built, ok := v.Peek()
	if !ok {
		return nil
	}
	if c, ok := any(built).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
