package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"derp/pkg/ui"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Long: `Print counts of discovered, fetched, and relevant captures, broken
down by discovery method, phrase, and capture year.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats() error {
	a, err := newApp()
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.catalog.Stats()
	if err != nil {
		ui.PrintError("Failed to read statistics", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Catalog")
	ui.PrintInfo("  Captures", fmt.Sprintf("%d", stats.TotalCaptures))
	ui.PrintInfo("  Fetched", fmt.Sprintf("%d", stats.Fetched))
	ui.PrintInfo("  Analyzed", fmt.Sprintf("%d", stats.Analyzed))
	ui.PrintInfo("  Relevant", fmt.Sprintf("%d", stats.Relevant))
	ui.PrintInfo("  Fetch errors", fmt.Sprintf("%d", stats.FetchErrors))
	ui.PrintInfo("  Media candidates", fmt.Sprintf("%d", stats.MediaCandidates))

	printBreakdown("By method", stats.ByMethod)
	printBreakdown("By phrase", stats.ByPhrase)
	printBreakdown("By year", stats.ByYear)
	printBreakdown("Media by kind", stats.MediaByKind)

	lastHour, err := a.catalog.RequestsSince(time.Now().Add(-time.Hour))
	if err != nil {
		ui.PrintError("Failed to read request log", err.Error())
		os.Exit(1)
	}
	ui.PrintInfo("Requests last hour", fmt.Sprintf("%d of %d", lastHour, a.cfg.RateLimit.RequestsPerHour))

	cursors, err := a.catalog.ListCursors()
	if err != nil {
		ui.PrintError("Failed to read cursors", err.Error())
		os.Exit(1)
	}
	if len(cursors) > 0 {
		ui.PrintHighlight("Search progress")
		for _, cur := range cursors {
			state := "in progress"
			if cur.Completed {
				state = "completed"
			}
			ui.Printf("  %-24s %-9s %s\n", cur.Phrase, cur.Method, state)
		}
	}
	return nil
}

func printBreakdown(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ui.PrintHighlight(title)
	for _, k := range keys {
		ui.Printf("  %-24s %d\n", k, counts[k])
	}
}
