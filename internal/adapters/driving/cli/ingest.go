package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strata-search/strata/internal/adapters/driven/source/markdown"
	"github.com/strata-search/strata/internal/logger"
)

var ingestWatch bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Ingest captured markdown documents",
	Long: `Reads captured markdown documents from a directory, chunks and
embeds them, and inserts them into the vector index. With --watch the
command keeps running and ingests files as they appear.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the directory")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	dir := a.cfg.CaptureDir
	if len(args) == 1 {
		dir = args[0]
	}

	source, err := markdown.New(dir)
	if err != nil {
		return err
	}
	defer source.Close()

	docs, errs := source.Load(ctx)
	report, err := a.ingestor.IngestAll(ctx, docs, errs)
	if err != nil {
		return err
	}

	cmd.Printf("Ingested %d documents (%d chunks indexed, %d failures)\n",
		report.DocumentsProcessed, report.ChunksIndexed, len(report.Failures))
	for _, f := range report.Failures {
		logger.Warn("failed: %s: %v", f.DocumentID, f.Err)
	}

	if err := a.persistIndex(ctx); err != nil {
		return err
	}

	if !ingestWatch {
		return nil
	}

	cmd.Printf("Watching %s for new captures...\n", dir)
	docs, errs = source.Watch(ctx)
	report, err = a.ingestor.IngestAll(ctx, docs, errs)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("watch ended: %d documents ingested", report.DocumentsProcessed)

	// The watch context is cancelled by now; persist with a fresh one.
	return a.persistIndex(context.Background())
}
