package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"derp/pkg/discovery"
	"derp/pkg/logger"
	"derp/pkg/ui"
)

var (
	searchPhrases []string
	searchMethods []string
	searchResume  bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Discover archived captures for the configured phrases",
	Long: `Run the discovery methods over the configured search phrases and
record every in-window capture in the catalog.

Each (phrase, method) pair keeps its own cursor, so an interrupted
search picks up where it left off on the next run. Pairs that already
ran to completion are skipped unless --resume forces them to start
over.`,
	Example: `  # Search all configured phrases with every method
  derp search

  # Only the CDX index, one phrase
  derp search --method cdx --phrase "cojum dip"

  # Re-run pairs that already completed
  derp search --resume`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch()
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringSliceVar(&searchPhrases, "phrase", nil, "phrase to search (repeatable, default: configured phrases)")
	searchCmd.Flags().StringSliceVar(&searchMethods, "method", nil,
		fmt.Sprintf("discovery method to run (repeatable, one of: %s)", strings.Join(discovery.Methods(), ", ")))
	searchCmd.Flags().BoolVar(&searchResume, "resume", false, "restart phrase/method pairs that already completed")
}

func runSearch() error {
	a, err := newApp()
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	phrases := searchPhrases
	if len(phrases) == 0 {
		phrases = a.cfg.Search.Phrases
	}
	methods := searchMethods
	if len(methods) == 0 {
		methods = discovery.Methods()
	}

	from, to := a.cfg.DateWindow()
	ui.PrintInfo("Phrases", strings.Join(phrases, ", "))
	ui.PrintInfo("Methods", strings.Join(methods, ", "))
	ui.PrintInfo("Window", from[:8]+" .. "+to[:8])

	engine := discovery.New(a.client, a.catalog, a.cfg, logger.GetLogger())
	summaries, err := engine.SearchAll(ctx, phrases, methods, searchResume)

	for _, s := range summaries {
		line := fmt.Sprintf("%-24s %-9s pages=%-4d inserted=%-5d dup=%-5d out-of-window=%d",
			s.Phrase, s.Method, s.Pages, s.Inserted, s.Duplicates, s.OutOfWindow)
		switch {
		case s.Skipped:
			ui.Printf("%s\n", ui.Dim(line+"  (already completed)"))
		case s.Completed:
			ui.Printf("%s\n", line)
		default:
			ui.Printf("%s\n", ui.Yellow(line+"  (incomplete)"))
		}
	}

	if err != nil {
		ui.PrintError("Search finished with errors", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Search completed")
	return nil
}
