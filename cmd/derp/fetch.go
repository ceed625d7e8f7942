package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"derp/pkg/extract"
	"derp/pkg/fetcher"
	"derp/pkg/logger"
	"derp/pkg/storage"
	"derp/pkg/ui"
)

var fetchLimit int

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and analyze pending captures",
	Long: `Fetch the page bodies of captures that were discovered but not yet
downloaded. Bodies are stored on disk under their content hash and
analyzed for phrase mentions and media links.

Captures whose fetch fails are marked with the error and left out of
future batches.`,
	Example: `  # Fetch everything pending
  derp fetch

  # Fetch at most 50 captures
  derp fetch --limit 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch()
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "maximum captures to fetch this run (0 = configured batch limit)")
}

func runFetch() error {
	a, err := newApp()
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewManager(a.cfg.Storage.Pages)
	if err != nil {
		ui.PrintError("Failed to open page storage", err.Error())
		os.Exit(1)
	}

	limit := fetchLimit
	if limit <= 0 {
		limit = a.cfg.Fetch.BatchLimit
	}

	analyzer := extract.NewAnalyzer(a.cfg.Search.Phrases, logger.GetLogger())
	f := fetcher.New(a.catalog, a.client, store, analyzer, a.cfg.Fetch.ConcurrentFetches, logger.GetLogger())

	summary, err := f.RunBatch(ctx, limit)
	if err != nil {
		ui.PrintError("Fetch batch failed", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Processed", fmt.Sprintf("%d", summary.Processed))
	ui.PrintInfo("Succeeded", fmt.Sprintf("%d", summary.Succeeded))
	ui.PrintInfo("Failed", fmt.Sprintf("%d", summary.Failed))
	ui.PrintInfo("Relevant", fmt.Sprintf("%d", summary.Relevant))

	if summary.Failed > 0 {
		ui.PrintWarning("Some captures failed; see the catalog for per-capture errors")
	} else if summary.Processed > 0 {
		ui.PrintSuccess("Fetch batch completed")
	}
	return nil
}
