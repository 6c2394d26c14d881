// Package main provides the ingest CLI. It loads the catalog's PDFs into the
// dense vector store and the sqlite corpus that backs BM25 retrieval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/genai"
	"github.com/garyellow/kmutt-form-bot/internal/ingest"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Load KMUTT form PDFs into the retrieval stores",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: the pipeline and its resources.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *storage.DB
	dense    rag.DenseStore
	pipeline *ingest.Pipeline
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var emb rag.Embedder
	ec, err := genai.NewEmbeddingClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if ec != nil {
		emb = ec
	}
	dense, err := rag.NewDenseStore(ctx, rag.StoreConfig{
		QdrantURL:    cfg.QdrantURL,
		QdrantAPIKey: cfg.QdrantAPIKey,
		Collection:   cfg.QdrantCollection,
		ChromemPath:  cfg.ChromemPath(),
	}, emb, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open dense store: %w", err)
	}
	if dense == nil {
		log.Warn("GEMINI_API_KEY not set, only the BM25 corpus will be written")
	}

	fetcher := ingest.NewFetcher(config.PDFDownload)
	return &env{
		cfg:      cfg,
		log:      log,
		db:       db,
		dense:    dense,
		pipeline: ingest.NewPipeline(db, dense, fetcher, nil, log),
	}, nil
}

func (e *env) Close() {
	if e.dense != nil {
		if err := e.dense.Close(); err != nil {
			e.log.WithError(err).Warn("Failed to close dense store")
		}
	}
	if err := e.db.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close database")
	}
}
