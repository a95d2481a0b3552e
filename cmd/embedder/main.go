package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/app"
	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "embedder",
		Short:         "Offline catalog embedding for visual-matcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newGenerateCmd())
	return root
}

type generateFlags struct {
	dataset     string
	output      string
	dataDir     string
	concurrency int
}

func newGenerateCmd() *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Embed every catalog product image and save the catalog",
		Long: "Reads the product CSV, loads each image (remote URL first, then the local image column), " +
			"embeds it through the ML service and writes the catalog to the store selected by CATALOG_SOURCE. " +
			"Rows whose image cannot be embedded are kept with a zero vector and marked invalid.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.dataset, "dataset", "", "product CSV (default CATALOG_CSV_PATH)")
	cmd.Flags().StringVar(&flags.output, "output", "", "embeddings file for the file store (default CATALOG_EMBEDDINGS_PATH)")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "directory with local product images (default CATALOG_DATA_DIR)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "rows processed in parallel (default BATCH_PARALLEL)")

	return cmd
}

func runGenerate(cmd *cobra.Command, flags generateFlags) error {
	log := logger.NewSlogLogger()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		return err
	}
	applyFlags(cfg, flags)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := app.NewEmbedder(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize embedder")
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := embedder.Close(closeCtx); err != nil {
			log.Warnf("%v", err)
		}
	}()

	log.Infof("embedding %s into %s store", cfg.Catalog.CSVPath, cfg.Catalog.Source)

	res, err := embedder.Run(ctx, cfg.Images.BatchParallel)
	if err != nil {
		log.Errorf(err, "embedding failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "embedded %d/%d products\n", res.Embedded, res.Total)
	for _, row := range res.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "  row %d %q: %v\n", row.Index+1, row.Name, row.Err)
	}

	return nil
}

// applyFlags переопределяет пути и параллелизм из конфигурации флагами командной строки.
func applyFlags(cfg *config.Config, flags generateFlags) {
	if flags.dataset != "" {
		cfg.Catalog.CSVPath = flags.dataset
	}
	if flags.output != "" {
		cfg.Catalog.EmbeddingsPath = flags.output
	}
	if flags.dataDir != "" {
		cfg.Catalog.DataDir = flags.dataDir
	}
	if flags.concurrency > 0 {
		cfg.Images.BatchParallel = flags.concurrency
	}
}
