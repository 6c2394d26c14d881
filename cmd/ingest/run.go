package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/ingest"
)

var runCommand = &cobra.Command{
	Use:   "run [url...]",
	Short: "Download, chunk and store the catalog PDFs",
	Long: `Downloads every PDF referenced by the form catalog (or the URLs given as
arguments), splits the text into overlapping passages and writes them to the
sqlite corpus and the dense vector store. Re-running replaces each file's
passages in place.`,
	RunE: runIngest,
}

var (
	runForceRecreate bool
	runConcurrency   int
	runChunkSize     int
	runChunkOverlap  int
)

func init() {
	runCommand.Flags().BoolVar(&runForceRecreate, "force-recreate", false, "Drop and recreate the dense collection first")
	runCommand.Flags().IntVarP(&runConcurrency, "concurrency", "c", ingest.DefaultConcurrency, "Parallel downloads")
	runCommand.Flags().IntVar(&runChunkSize, "chunk-size", 0, "Passage size in characters (default 500)")
	runCommand.Flags().IntVar(&runChunkOverlap, "chunk-overlap", 0, "Overlap between passages (default 50)")

	rootCmd.AddCommand(runCommand)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	urls := args
	if len(urls) == 0 {
		urls = catalog.Default().URLs()
	}

	stats, err := e.pipeline.Run(ctx, ingest.Options{
		URLs:          urls,
		ForceRecreate: runForceRecreate,
		Concurrency:   runConcurrency,
		ChunkSize:     runChunkSize,
		ChunkOverlap:  runChunkOverlap,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "files=%d failed=%d pages=%d passages=%d\n",
		stats.Files.Load(), stats.Failed.Load(), stats.Pages.Load(), stats.Chunks.Load())
	if stats.Files.Load() == 0 && len(urls) > 0 {
		return fmt.Errorf("no file could be ingested (%d failed)", stats.Failed.Load())
	}
	return nil
}
