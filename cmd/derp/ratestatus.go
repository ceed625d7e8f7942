package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"derp/pkg/ui"
)

var rateStatusRecent int

// rateStatusCmd represents the rate-status command
var rateStatusCmd = &cobra.Command{
	Use:   "rate-status",
	Short: "Show recent archive request activity against the configured limits",
	Long: `Report how much of the hourly request budget recent runs have used,
based on the persistent request log, along with the configured pacing
parameters.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRateStatus()
	},
}

func init() {
	rootCmd.AddCommand(rateStatusCmd)

	rateStatusCmd.Flags().IntVar(&rateStatusRecent, "recent", 10, "number of recent requests to list")
}

func runRateStatus() error {
	a, err := newApp()
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	lastHour, err := a.catalog.RequestsSince(time.Now().Add(-time.Hour))
	if err != nil {
		ui.PrintError("Failed to read request log", err.Error())
		os.Exit(1)
	}

	state := a.governor.Snapshot()
	ui.PrintHighlight("Governor")
	ui.PrintInfo("  Backoff level", fmt.Sprintf("%d (next delay %s)", state.BackoffLevel, state.NextBackoffDelay))
	ui.PrintInfo("  Requests this session", fmt.Sprintf("%d (%d errors)", state.TotalRequests, state.TotalErrors))
	if !state.CooldownUntil.IsZero() {
		ui.PrintWarning("  Cooldown pending", state.CooldownUntil.Format("15:04:05"))
	}

	rl := a.cfg.RateLimit
	ui.PrintHighlight("Configured limits")
	ui.PrintInfo("  Requests per hour", fmt.Sprintf("%d", rl.RequestsPerHour))
	ui.PrintInfo("  Delay between requests", fmt.Sprintf("%s .. %s (+%s jitter)", rl.MinDelay, rl.MaxDelay, rl.Jitter))
	ui.PrintInfo("  Backoff", fmt.Sprintf("%s base, %s max", rl.BackoffBase, rl.BackoffMax))
	ui.PrintInfo("  Cooldown", fmt.Sprintf("%s every %d requests", rl.CooldownDuration, rl.CooldownEvery))

	ui.PrintHighlight("Last hour")
	ui.PrintInfo("  Requests sent", fmt.Sprintf("%d of %d", lastHour, rl.RequestsPerHour))
	if rl.RequestsPerHour > 0 && lastHour >= rl.RequestsPerHour {
		ui.PrintWarning("  Hourly budget exhausted; new requests will wait")
	}

	recent, err := a.catalog.RecentRequests(rateStatusRecent)
	if err != nil {
		ui.PrintError("Failed to read request log", err.Error())
		os.Exit(1)
	}
	if len(recent) > 0 {
		ui.PrintHighlight("Recent requests")
		for _, r := range recent {
			line := fmt.Sprintf("  %s  %-12s %-13s %3d  %6dms  %s",
				r.RequestedAt.Local().Format("15:04:05"),
				r.Context, r.Outcome, r.StatusCode, r.Duration.Milliseconds(), r.URL)
			if r.Outcome != "success" {
				ui.Printf("%s\n", ui.Red(line))
			} else {
				ui.Printf("%s\n", ui.Dim(line))
			}
		}
	}
	return nil
}
