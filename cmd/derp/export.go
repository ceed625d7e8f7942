package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"derp/pkg/export"
	"derp/pkg/logger"
	"derp/pkg/ui"
)

var (
	exportFormat    string
	exportOutputDir string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalog to disk as JSON, CSV, or an HTML report",
	Example: `  # JSON dump of everything
  derp export

  # CSV files for spreadsheet work
  derp export --format csv

  # Human-readable report
  derp export --format html --output ./reports`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", export.FormatJSON,
		"output format ("+strings.Join(export.Formats(), ", ")+")")
	exportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", "", "output directory (default: configured export dir)")
}

func runExport() error {
	a, err := newApp()
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	outputDir := exportOutputDir
	if outputDir == "" {
		outputDir = a.cfg.Export.OutputDir
	}

	e := export.New(a.catalog, outputDir, logger.GetLogger())
	paths, err := e.Export(exportFormat)
	if err != nil {
		ui.PrintError("Export failed", err.Error())
		os.Exit(1)
	}

	for _, p := range paths {
		ui.PrintInfo("Wrote", p)
	}
	ui.PrintSuccess("Export completed")
	return nil
}
