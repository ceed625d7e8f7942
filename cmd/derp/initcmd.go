package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"derp/pkg/config"
	"derp/pkg/ui"
)

var initForce bool

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Write the default configuration to a YAML file so it can be edited.
Defaults to ./derp.yaml when no path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "derp.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		return runInit(path)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
}

func runInit(path string) error {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			ui.PrintError("File already exists", path)
			ui.PrintInfo("Hint", "use --force to overwrite")
			os.Exit(1)
		}
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		ui.PrintError("Failed to write config", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Wrote " + path)
	ui.PrintInfo("Next", "edit the phrase list and run 'derp search'")
	return nil
}
